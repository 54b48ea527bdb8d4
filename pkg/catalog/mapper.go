package catalog

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
	"gorm.io/datatypes"
)

// relationFetcher is the batch-lookup surface the mapper expands
// relationships through: one call per referenced kind per page, never one
// per row. The repository implements it; tests substitute a fake.
type relationFetcher interface {
	datasetsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Dataset, error)
	tasksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Task, error)
	flowsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Flow, error)
}

func toDataset(m datasetModel) models.Dataset {
	return models.Dataset{
		ID:                     m.ID,
		Name:                   m.Name,
		Version:                m.Version,
		Description:            m.Description,
		Uploader:               m.Uploader,
		UploadDate:             m.UploadDate,
		Licence:                m.Licence,
		Language:               m.Language,
		Format:                 m.Format,
		DefaultTargetAttribute: stringValue(m.DefaultTargetAttribute),
		Tags:                   jsonStringArray(m.Tags),
		OriginalDataURL:        m.OriginalDataURL,
		MD5Checksum:            m.MD5Checksum,
		Visibility:             m.Visibility,
		Status:                 m.Status,
	}
}

func toTask(m taskModel) models.Task {
	return models.Task{
		ID:                  m.ID,
		Type:                m.Type,
		DatasetID:           m.DatasetID,
		DatasetVersion:      m.DatasetVersion,
		EstimationProcedure: stringValue(m.EstimationProcedure),
		TargetFeature:       stringValue(m.TargetFeature),
		EvaluationMeasure:   stringValue(m.EvaluationMeasure),
		Config:              jsonMap(m.Config),
		CreatedAt:           m.CreatedAt,
	}
}

func toFlow(m flowModel) models.Flow {
	return models.Flow{
		ID:              m.ID,
		Name:            m.Name,
		Version:         m.Version,
		ExternalVersion: stringValue(m.ExternalVersion),
		Description:     m.Description,
		Library:         stringValue(m.Library),
		LibraryVersion:  stringValue(m.LibraryVersion),
		Parameters:      jsonMap(m.Parameters),
		Tags:            jsonStringArray(m.Tags),
		CreatedAt:       m.CreatedAt,
	}
}

func toRun(m runModel) models.Run {
	return models.Run{
		ID:           m.ID,
		TaskID:       m.TaskID,
		FlowID:       m.FlowID,
		Uploader:     m.Uploader,
		Setup:        m.Setup,
		Metrics:      jsonFloatMap(m.Metrics),
		ErrorMessage: m.ErrorMessage,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		Status:       m.Status,
	}
}

// expandTaskDatasets resolves the dataset reference of every task on the
// page with a single batched lookup. A reference that fails to resolve is
// storage corruption, not absence, and aborts the read.
func expandTaskDatasets(ctx context.Context, f relationFetcher, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(tasks))
	seen := make(map[uuid.UUID]bool, len(tasks))
	for i := range tasks {
		if !seen[tasks[i].DatasetID] {
			seen[tasks[i].DatasetID] = true
			ids = append(ids, tasks[i].DatasetID)
		}
	}
	datasets, err := f.datasetsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range tasks {
		ds, ok := datasets[tasks[i].DatasetID]
		if !ok {
			return &IntegrityViolationError{Kind: KindDataset, ID: tasks[i].DatasetID.String()}
		}
		tasks[i].Dataset = &ds
	}
	return nil
}

// expandRunRelations resolves task and/or flow references for a page of
// runs, costing one batched lookup per requested kind.
func expandRunRelations(ctx context.Context, f relationFetcher, runs []models.Run, withTask, withFlow bool) error {
	if len(runs) == 0 || (!withTask && !withFlow) {
		return nil
	}

	if withTask {
		ids := make([]uuid.UUID, 0, len(runs))
		seen := make(map[uuid.UUID]bool, len(runs))
		for i := range runs {
			if !seen[runs[i].TaskID] {
				seen[runs[i].TaskID] = true
				ids = append(ids, runs[i].TaskID)
			}
		}
		tasks, err := f.tasksByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for i := range runs {
			task, ok := tasks[runs[i].TaskID]
			if !ok {
				return &IntegrityViolationError{Kind: KindTask, ID: runs[i].TaskID.String()}
			}
			runs[i].Task = &task
		}
	}

	if withFlow {
		ids := make([]uuid.UUID, 0, len(runs))
		seen := make(map[uuid.UUID]bool, len(runs))
		for i := range runs {
			if !seen[runs[i].FlowID] {
				seen[runs[i].FlowID] = true
				ids = append(ids, runs[i].FlowID)
			}
		}
		flows, err := f.flowsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for i := range runs {
			flow, ok := flows[runs[i].FlowID]
			if !ok {
				return &IntegrityViolationError{Kind: KindFlow, ID: runs[i].FlowID.String()}
			}
			runs[i].Flow = &flow
		}
	}

	return nil
}

func jsonMap(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}

func jsonStringArray(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var result []string
	_ = json.Unmarshal(data, &result)
	return result
}

func jsonFloatMap(data datatypes.JSON) map[string]float64 {
	if len(data) == 0 {
		return nil
	}
	var result map[string]float64
	_ = json.Unmarshal(data, &result)
	return result
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
