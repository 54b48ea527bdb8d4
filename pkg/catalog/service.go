package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/kafka"
	"github.com/opencatalog/platform/pkg/common/logger"
	"github.com/opencatalog/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

// Service orchestrates validation, storage, the read cache, and event
// fan-out. The cache and producer are optional; a nil client degrades to
// plain storage access.
type Service struct {
	repo      *Repository
	validator *Validator
	cache     *redis.Client
	cacheTTL  time.Duration
	producer  *kafka.Producer
}

func NewService(repo *Repository, validator *Validator, cache *redis.Client, cacheTTL time.Duration, producer *kafka.Producer) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		cache:     cache,
		cacheTTL:  cacheTTL,
		producer:  producer,
	}
}

func (s *Service) ListDatasets(ctx context.Context, opts ListOptions) ([]models.Dataset, *string, error) {
	return s.repo.ListDatasets(ctx, opts)
}

func (s *Service) ListTasks(ctx context.Context, opts ListOptions) ([]models.Task, *string, error) {
	return s.repo.ListTasks(ctx, opts)
}

func (s *Service) ListFlows(ctx context.Context, opts ListOptions) ([]models.Flow, *string, error) {
	return s.repo.ListFlows(ctx, opts)
}

func (s *Service) ListRuns(ctx context.Context, opts ListOptions) ([]models.Run, *string, error) {
	return s.repo.ListRuns(ctx, opts)
}

func (s *Service) GetDataset(ctx context.Context, id uuid.UUID) (models.Dataset, error) {
	var cached models.Dataset
	if s.cacheGet(ctx, datasetCacheKey(id), &cached) {
		return cached, nil
	}
	dataset, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return models.Dataset{}, err
	}
	s.cacheSet(ctx, datasetCacheKey(id), dataset)
	return dataset, nil
}

func (s *Service) GetTask(ctx context.Context, id uuid.UUID, expand map[Kind]bool) (models.Task, error) {
	return s.repo.GetTask(ctx, id, expand)
}

func (s *Service) GetFlow(ctx context.Context, id uuid.UUID) (models.Flow, error) {
	var cached models.Flow
	if s.cacheGet(ctx, flowCacheKey(id), &cached) {
		return cached, nil
	}
	flow, err := s.repo.GetFlow(ctx, id)
	if err != nil {
		return models.Flow{}, err
	}
	s.cacheSet(ctx, flowCacheKey(id), flow)
	return flow, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID, expand map[Kind]bool) (models.Run, error) {
	return s.repo.GetRun(ctx, id, expand)
}

func (s *Service) RegisterDataset(ctx context.Context, req models.RegisterDatasetRequest, uploader string) (models.Dataset, error) {
	if err := s.validator.ValidateDataset(req); err != nil {
		return models.Dataset{}, err
	}
	dataset, err := s.repo.CreateDataset(ctx, req, uploader)
	if err != nil {
		return models.Dataset{}, err
	}
	s.publish(ctx, "dataset_registered", KindDataset, dataset.ID, map[string]interface{}{
		"name": dataset.Name, "version": dataset.Version,
	})
	return dataset, nil
}

func (s *Service) DeactivateDataset(ctx context.Context, id uuid.UUID, status string, actor string) (models.Dataset, error) {
	if err := s.validator.ValidateDatasetStatus(status); err != nil {
		return models.Dataset{}, err
	}
	dataset, err := s.repo.DeactivateDataset(ctx, id, status, actor)
	if err != nil {
		return models.Dataset{}, err
	}
	s.cacheDelete(ctx, datasetCacheKey(id))
	s.publish(ctx, "dataset_status_changed", KindDataset, dataset.ID, map[string]interface{}{
		"status": dataset.Status,
	})
	return dataset, nil
}

func (s *Service) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Task, error) {
	if err := s.validator.ValidateTask(req); err != nil {
		return models.Task{}, err
	}
	task, err := s.repo.CreateTask(ctx, req)
	if err != nil {
		return models.Task{}, err
	}
	s.publish(ctx, "task_created", KindTask, task.ID, map[string]interface{}{
		"type": task.Type, "dataset_id": task.DatasetID.String(),
	})
	return task, nil
}

func (s *Service) RegisterFlow(ctx context.Context, req models.RegisterFlowRequest) (models.Flow, error) {
	if err := s.validator.ValidateFlow(req); err != nil {
		return models.Flow{}, err
	}
	flow, err := s.repo.CreateFlow(ctx, req)
	if err != nil {
		return models.Flow{}, err
	}
	s.publish(ctx, "flow_registered", KindFlow, flow.ID, map[string]interface{}{
		"name": flow.Name, "version": flow.Version,
	})
	return flow, nil
}

func (s *Service) SubmitRun(ctx context.Context, req models.SubmitRunRequest, uploader string) (models.Run, error) {
	if err := s.validator.ValidateRun(req); err != nil {
		return models.Run{}, err
	}
	run, err := s.repo.CreateRun(ctx, req, uploader)
	if err != nil {
		return models.Run{}, err
	}
	s.publish(ctx, "run_submitted", KindRun, run.ID, map[string]interface{}{
		"task_id": run.TaskID.String(), "flow_id": run.FlowID.String(),
	})
	return run, nil
}

func (s *Service) UpdateRunStatus(ctx context.Context, id uuid.UUID, req models.UpdateRunStatusRequest) (models.Run, error) {
	if err := s.validator.ValidateRunStatusUpdate(req); err != nil {
		return models.Run{}, err
	}
	run, err := s.repo.UpdateRunStatus(ctx, id, req)
	if err != nil {
		return models.Run{}, err
	}
	s.publish(ctx, "run_status_changed", KindRun, run.ID, map[string]interface{}{
		"status": run.Status,
	})
	return run, nil
}

// publish fans the committed write out to kafka. The row is the source of
// truth, so publish failures are logged and never fail the request.
func (s *Service) publish(ctx context.Context, eventType string, kind Kind, id uuid.UUID, data map[string]interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishEvent(ctx, eventType, string(kind), id.String(), data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("event publish failed")
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, dst interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", key).Debug("cache set failed")
	}
}

func (s *Service) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", key).Debug("cache delete failed")
	}
}

func datasetCacheKey(id uuid.UUID) string { return "catalog:dataset:" + id.String() }
func flowCacheKey(id uuid.UUID) string    { return "catalog:flow:" + id.String() }
