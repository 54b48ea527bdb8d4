package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db      *gorm.DB
	builder *QueryBuilder
	codec   *CursorCodec
}

func NewRepository(db *gorm.DB, builder *QueryBuilder, codec *CursorCodec) *Repository {
	return &Repository{db: db, builder: builder, codec: codec}
}

type datasetModel struct {
	ID                     uuid.UUID      `gorm:"primaryKey;column:id"`
	Name                   string         `gorm:"column:name;uniqueIndex:idx_datasets_name_version"`
	Version                int            `gorm:"column:version;uniqueIndex:idx_datasets_name_version"`
	Description            string         `gorm:"column:description"`
	Uploader               string         `gorm:"column:uploader"`
	UploadDate             time.Time      `gorm:"column:upload_date"`
	Licence                string         `gorm:"column:licence"`
	Language               string         `gorm:"column:language"`
	Format                 string         `gorm:"column:format"`
	DefaultTargetAttribute *string        `gorm:"column:default_target_attribute"`
	Tags                   datatypes.JSON `gorm:"column:tags"`
	OriginalDataURL        string         `gorm:"column:original_data_url"`
	MD5Checksum            string         `gorm:"column:md5_checksum"`
	Visibility             string         `gorm:"column:visibility"`
	Status                 string         `gorm:"column:status;index"`
}

func (datasetModel) TableName() string { return "datasets" }

type taskModel struct {
	ID                  uuid.UUID      `gorm:"primaryKey;column:id"`
	Type                string         `gorm:"column:type;index"`
	DatasetID           uuid.UUID      `gorm:"column:dataset_id;index"`
	DatasetVersion      int            `gorm:"column:dataset_version"`
	EstimationProcedure *string        `gorm:"column:estimation_procedure"`
	TargetFeature       *string        `gorm:"column:target_feature"`
	EvaluationMeasure   *string        `gorm:"column:evaluation_measure"`
	Config              datatypes.JSON `gorm:"column:config"`
	CreatedAt           time.Time      `gorm:"column:created_at"`
}

func (taskModel) TableName() string { return "tasks" }

type flowModel struct {
	ID              uuid.UUID      `gorm:"primaryKey;column:id"`
	Name            string         `gorm:"column:name;uniqueIndex:idx_flows_name_version"`
	Version         int            `gorm:"column:version;uniqueIndex:idx_flows_name_version"`
	ExternalVersion *string        `gorm:"column:external_version"`
	Description     string         `gorm:"column:description"`
	Library         *string        `gorm:"column:library"`
	LibraryVersion  *string        `gorm:"column:library_version"`
	Parameters      datatypes.JSON `gorm:"column:parameters"`
	Tags            datatypes.JSON `gorm:"column:tags"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
}

func (flowModel) TableName() string { return "flows" }

type runModel struct {
	ID           uuid.UUID      `gorm:"primaryKey;column:id"`
	TaskID       uuid.UUID      `gorm:"column:task_id;index"`
	FlowID       uuid.UUID      `gorm:"column:flow_id;index"`
	Uploader     string         `gorm:"column:uploader;index"`
	Setup        string         `gorm:"column:setup"`
	Metrics      datatypes.JSON `gorm:"column:metrics"`
	ErrorMessage string         `gorm:"column:error_message"`
	StartedAt    time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
	Status       string         `gorm:"column:status;index"`
}

func (runModel) TableName() string { return "runs" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&datasetModel{},
		&taskModel{},
		&flowModel{},
		&runModel{},
	)
}

// txGuardStore implements GuardStore on one write transaction, so guard
// reads and the subsequent write commit atomically.
type txGuardStore struct {
	tx *gorm.DB
}

func (s *txGuardStore) DatasetState(ctx context.Context, id uuid.UUID) (int, string, bool, error) {
	var row struct {
		Version int
		Status  string
	}
	err := s.tx.Model(&datasetModel{}).Select("version", "status").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return row.Version, row.Status, true, nil
}

func (s *txGuardStore) DatasetVersionExists(ctx context.Context, name string, version int) (bool, error) {
	var count int64
	err := s.tx.Model(&datasetModel{}).Where("name = ? AND version = ?", name, version).Count(&count).Error
	return count > 0, err
}

func (s *txGuardStore) NextDatasetVersion(ctx context.Context, name string) (int, error) {
	var max int
	err := s.tx.Model(&datasetModel{}).Select("COALESCE(MAX(version), 0)").Where("name = ?", name).Scan(&max).Error
	return max + 1, err
}

func (s *txGuardStore) FlowVersionExists(ctx context.Context, name string, version int) (bool, error) {
	var count int64
	err := s.tx.Model(&flowModel{}).Where("name = ? AND version = ?", name, version).Count(&count).Error
	return count > 0, err
}

func (s *txGuardStore) NextFlowVersion(ctx context.Context, name string) (int, error) {
	var max int
	err := s.tx.Model(&flowModel{}).Select("COALESCE(MAX(version), 0)").Where("name = ?", name).Scan(&max).Error
	return max + 1, err
}

func (s *txGuardStore) TaskState(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var row struct {
		DatasetID uuid.UUID
	}
	err := s.tx.Model(&taskModel{}).Select("dataset_id").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return row.DatasetID, true, nil
}

func (s *txGuardStore) FlowExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.tx.Model(&flowModel{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *txGuardStore) RunState(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var row struct {
		Status string
	}
	err := s.tx.Model(&runModel{}).Select("status").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Status, true, nil
}

// --- list/detail reads ---

func (r *Repository) ListDatasets(ctx context.Context, opts ListOptions) ([]models.Dataset, *string, error) {
	opts.Sort = normalizeSort(opts.Sort)
	var rows []datasetModel
	more, err := r.list(ctx, KindDataset, opts, &rows)
	if err != nil {
		return nil, nil, err
	}
	items := make([]models.Dataset, 0, len(rows))
	for i := range rows {
		items = append(items, toDataset(rows[i]))
	}
	var next *string
	if more {
		last := rows[len(rows)-1]
		value, isNull := datasetSortValue(last, opts.Sort.Field)
		next, err = r.nextCursor(KindDataset, opts.Sort, value, isNull, last.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return items, next, nil
}

func (r *Repository) ListTasks(ctx context.Context, opts ListOptions) ([]models.Task, *string, error) {
	opts.Sort = normalizeSort(opts.Sort)
	var rows []taskModel
	more, err := r.list(ctx, KindTask, opts, &rows)
	if err != nil {
		return nil, nil, err
	}
	items := make([]models.Task, 0, len(rows))
	for i := range rows {
		items = append(items, toTask(rows[i]))
	}
	if opts.Expand[KindDataset] {
		if err := expandTaskDatasets(ctx, r, items); err != nil {
			return nil, nil, err
		}
	}
	var next *string
	if more {
		last := rows[len(rows)-1]
		value, isNull := taskSortValue(last, opts.Sort.Field)
		next, err = r.nextCursor(KindTask, opts.Sort, value, isNull, last.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return items, next, nil
}

func (r *Repository) ListFlows(ctx context.Context, opts ListOptions) ([]models.Flow, *string, error) {
	opts.Sort = normalizeSort(opts.Sort)
	var rows []flowModel
	more, err := r.list(ctx, KindFlow, opts, &rows)
	if err != nil {
		return nil, nil, err
	}
	items := make([]models.Flow, 0, len(rows))
	for i := range rows {
		items = append(items, toFlow(rows[i]))
	}
	var next *string
	if more {
		last := rows[len(rows)-1]
		value, isNull := flowSortValue(last, opts.Sort.Field)
		next, err = r.nextCursor(KindFlow, opts.Sort, value, isNull, last.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return items, next, nil
}

func (r *Repository) ListRuns(ctx context.Context, opts ListOptions) ([]models.Run, *string, error) {
	opts.Sort = normalizeSort(opts.Sort)
	var rows []runModel
	more, err := r.list(ctx, KindRun, opts, &rows)
	if err != nil {
		return nil, nil, err
	}
	items := make([]models.Run, 0, len(rows))
	for i := range rows {
		items = append(items, toRun(rows[i]))
	}
	if err := expandRunRelations(ctx, r, items, opts.Expand[KindTask], opts.Expand[KindFlow]); err != nil {
		return nil, nil, err
	}
	var next *string
	if more {
		last := rows[len(rows)-1]
		value, isNull := runSortValue(last, opts.Sort.Field)
		next, err = r.nextCursor(KindRun, opts.Sort, value, isNull, last.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return items, next, nil
}

// list runs the bounded query for one kind and reports whether a further
// page exists. dest must be a pointer to a row-model slice; the extra
// sentinel row is trimmed before returning.
func (r *Repository) list(ctx context.Context, kind Kind, opts ListOptions, dest interface{}) (bool, error) {
	tx := r.db.WithContext(ctx)
	q, limit, err := r.builder.Build(tx, kind, opts)
	if err != nil {
		return false, err
	}
	if err := q.Find(dest).Error; err != nil {
		return false, err
	}
	return trimSentinel(dest, limit), nil
}

func trimSentinel(dest interface{}, limit int) bool {
	switch rows := dest.(type) {
	case *[]datasetModel:
		if len(*rows) > limit {
			*rows = (*rows)[:limit]
			return true
		}
	case *[]taskModel:
		if len(*rows) > limit {
			*rows = (*rows)[:limit]
			return true
		}
	case *[]flowModel:
		if len(*rows) > limit {
			*rows = (*rows)[:limit]
			return true
		}
	case *[]runModel:
		if len(*rows) > limit {
			*rows = (*rows)[:limit]
			return true
		}
	}
	return false
}

func normalizeSort(sort SortSpec) SortSpec {
	if sort.Field == "" {
		sort.Field = TieBreakField
	}
	return sort
}

func (r *Repository) nextCursor(kind Kind, sort SortSpec, sortValue string, sortIsNull bool, lastID uuid.UUID) (*string, error) {
	token, err := r.codec.Encode(kind, sort, Position{SortValue: sortValue, SortIsNull: sortIsNull, LastID: lastID})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *Repository) GetDataset(ctx context.Context, id uuid.UUID) (models.Dataset, error) {
	var row datasetModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Dataset{}, &NotFoundError{Kind: KindDataset, ID: id.String()}
		}
		return models.Dataset{}, err
	}
	return toDataset(row), nil
}

func (r *Repository) GetTask(ctx context.Context, id uuid.UUID, expand map[Kind]bool) (models.Task, error) {
	var row taskModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, &NotFoundError{Kind: KindTask, ID: id.String()}
		}
		return models.Task{}, err
	}
	items := []models.Task{toTask(row)}
	if expand[KindDataset] {
		if err := expandTaskDatasets(ctx, r, items); err != nil {
			return models.Task{}, err
		}
	}
	return items[0], nil
}

func (r *Repository) GetFlow(ctx context.Context, id uuid.UUID) (models.Flow, error) {
	var row flowModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Flow{}, &NotFoundError{Kind: KindFlow, ID: id.String()}
		}
		return models.Flow{}, err
	}
	return toFlow(row), nil
}

func (r *Repository) GetRun(ctx context.Context, id uuid.UUID, expand map[Kind]bool) (models.Run, error) {
	var row runModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Run{}, &NotFoundError{Kind: KindRun, ID: id.String()}
		}
		return models.Run{}, err
	}
	items := []models.Run{toRun(row)}
	if err := expandRunRelations(ctx, r, items, expand[KindTask], expand[KindFlow]); err != nil {
		return models.Run{}, err
	}
	return items[0], nil
}

// --- writes ---

func (r *Repository) CreateDataset(ctx context.Context, req models.RegisterDatasetRequest, uploader string) (models.Dataset, error) {
	var out models.Dataset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := NewGuard(&txGuardStore{tx: tx})
		version, err := guard.CheckDatasetUpload(ctx, req.Name, req.Version)
		if err != nil {
			return err
		}

		row := datasetModel{
			ID:              uuid.New(),
			Name:            req.Name,
			Version:         version,
			Description:     req.Description,
			Uploader:        uploader,
			UploadDate:      time.Now().UTC(),
			Licence:         req.Licence,
			Language:        req.Language,
			Format:          req.Format,
			OriginalDataURL: req.OriginalDataURL,
			MD5Checksum:     req.MD5Checksum,
			Visibility:      defaultString(req.Visibility, models.VisibilityPublic),
			Status:          models.DatasetStatusActive,
		}
		if req.DefaultTargetAttribute != "" {
			row.DefaultTargetAttribute = &req.DefaultTargetAttribute
		}
		if req.Tags != nil {
			if data, err := json.Marshal(req.Tags); err == nil {
				row.Tags = datatypes.JSON(data)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return mapUniqueViolation(err, "dataset name/version unique", req.Name)
		}
		out = toDataset(row)
		return nil
	})
	if err != nil {
		return models.Dataset{}, err
	}
	return out, nil
}

func (r *Repository) DeactivateDataset(ctx context.Context, id uuid.UUID, status string, actor string) (models.Dataset, error) {
	var out models.Dataset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row datasetModel
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: KindDataset, ID: id.String()}
			}
			return err
		}
		if row.Uploader != actor {
			return &ConsistencyError{Constraint: "dataset status changed by its uploader", OffendingValue: actor}
		}

		guard := NewGuard(&txGuardStore{tx: tx})
		if err := guard.CheckDatasetTransition(row.Status, status); err != nil {
			return err
		}
		if err := tx.Model(&datasetModel{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			return err
		}
		row.Status = status
		out = toDataset(row)
		return nil
	})
	if err != nil {
		return models.Dataset{}, err
	}
	return out, nil
}

func (r *Repository) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Task, error) {
	var out models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := NewGuard(&txGuardStore{tx: tx})
		if err := guard.CheckTaskCreate(ctx, req.DatasetID, req.DatasetVersion); err != nil {
			return err
		}

		row := taskModel{
			ID:             uuid.New(),
			Type:           req.Type,
			DatasetID:      req.DatasetID,
			DatasetVersion: req.DatasetVersion,
			CreatedAt:      time.Now().UTC(),
		}
		if req.EstimationProcedure != "" {
			row.EstimationProcedure = &req.EstimationProcedure
		}
		if req.TargetFeature != "" {
			row.TargetFeature = &req.TargetFeature
		}
		if req.EvaluationMeasure != "" {
			row.EvaluationMeasure = &req.EvaluationMeasure
		}
		if req.Config != nil {
			if data, err := json.Marshal(req.Config); err == nil {
				row.Config = datatypes.JSON(data)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = toTask(row)
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return out, nil
}

func (r *Repository) CreateFlow(ctx context.Context, req models.RegisterFlowRequest) (models.Flow, error) {
	var out models.Flow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := NewGuard(&txGuardStore{tx: tx})
		version, err := guard.CheckFlowRegister(ctx, req.Name, req.Version)
		if err != nil {
			return err
		}

		row := flowModel{
			ID:          uuid.New(),
			Name:        req.Name,
			Version:     version,
			Description: req.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if req.ExternalVersion != "" {
			row.ExternalVersion = &req.ExternalVersion
		}
		if req.Library != "" {
			row.Library = &req.Library
		}
		if req.LibraryVersion != "" {
			row.LibraryVersion = &req.LibraryVersion
		}
		if req.Parameters != nil {
			if data, err := json.Marshal(req.Parameters); err == nil {
				row.Parameters = datatypes.JSON(data)
			}
		}
		if req.Tags != nil {
			if data, err := json.Marshal(req.Tags); err == nil {
				row.Tags = datatypes.JSON(data)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return mapUniqueViolation(err, "flow name/version unique", req.Name)
		}
		out = toFlow(row)
		return nil
	})
	if err != nil {
		return models.Flow{}, err
	}
	return out, nil
}

func (r *Repository) CreateRun(ctx context.Context, req models.SubmitRunRequest, uploader string) (models.Run, error) {
	var out models.Run
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := NewGuard(&txGuardStore{tx: tx})
		if err := guard.CheckRunSubmit(ctx, req.TaskID, req.FlowID); err != nil {
			return err
		}

		row := runModel{
			ID:        uuid.New(),
			TaskID:    req.TaskID,
			FlowID:    req.FlowID,
			Uploader:  uploader,
			Setup:     req.Setup,
			StartedAt: time.Now().UTC(),
			Status:    models.RunStatusPending,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = toRun(row)
		return nil
	})
	if err != nil {
		return models.Run{}, err
	}
	return out, nil
}

func (r *Repository) UpdateRunStatus(ctx context.Context, id uuid.UUID, req models.UpdateRunStatusRequest) (models.Run, error) {
	var out models.Run
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := NewGuard(&txGuardStore{tx: tx})
		if err := guard.CheckRunTransition(ctx, id, req.Status); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       req.Status,
			"completed_at": now,
		}
		if req.Status == models.RunStatusFailed {
			updates["error_message"] = req.ErrorMessage
		}
		if req.Metrics != nil {
			if data, err := json.Marshal(req.Metrics); err == nil {
				updates["metrics"] = datatypes.JSON(data)
			}
		}
		if err := tx.Model(&runModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		var row runModel
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		out = toRun(row)
		return nil
	})
	if err != nil {
		return models.Run{}, err
	}
	return out, nil
}

// --- relation batch lookups (relationFetcher) ---

func (r *Repository) datasetsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Dataset, error) {
	var rows []datasetModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Dataset, len(rows))
	for i := range rows {
		out[rows[i].ID] = toDataset(rows[i])
	}
	return out, nil
}

func (r *Repository) tasksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Task, error) {
	var rows []taskModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Task, len(rows))
	for i := range rows {
		out[rows[i].ID] = toTask(rows[i])
	}
	return out, nil
}

func (r *Repository) flowsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Flow, error) {
	var rows []flowModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Flow, len(rows))
	for i := range rows {
		out[rows[i].ID] = toFlow(rows[i])
	}
	return out, nil
}

// --- sort-value extraction for cursor encoding ---

// The second return marks a NULL sort value, which only nullable sort
// columns can produce; the cursor records it instead of a wire value.

func datasetSortValue(m datasetModel, field string) (string, bool) {
	switch field {
	case "name":
		return m.Name, false
	case "version":
		return strconv.Itoa(m.Version), false
	case "upload_date":
		return m.UploadDate.UTC().Format(time.RFC3339Nano), false
	}
	return "", false
}

func taskSortValue(m taskModel, field string) (string, bool) {
	switch field {
	case "type":
		return m.Type, false
	case "created_at":
		return m.CreatedAt.UTC().Format(time.RFC3339Nano), false
	}
	return "", false
}

func flowSortValue(m flowModel, field string) (string, bool) {
	switch field {
	case "name":
		return m.Name, false
	case "version":
		return strconv.Itoa(m.Version), false
	case "created_at":
		return m.CreatedAt.UTC().Format(time.RFC3339Nano), false
	}
	return "", false
}

func runSortValue(m runModel, field string) (string, bool) {
	switch field {
	case "status":
		return m.Status, false
	case "started_at":
		return m.StartedAt.UTC().Format(time.RFC3339Nano), false
	case "completed_at":
		if m.CompletedAt == nil {
			return "", true
		}
		return m.CompletedAt.UTC().Format(time.RFC3339Nano), false
	}
	return "", false
}

// mapUniqueViolation converts a storage-level duplicate-key failure into
// the ConsistencyError the guard would have produced. The guard check and
// the unique index together close the read-then-write race.
func mapUniqueViolation(err error, constraint, value string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
		return &ConsistencyError{Constraint: constraint, OffendingValue: value}
	}
	return err
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
