package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
)

// fakeGuardStore is an in-memory GuardStore covering the reference shapes
// the guard checks against.
type fakeGuardStore struct {
	datasets map[uuid.UUID]struct {
		version int
		status  string
	}
	datasetVersions map[string]map[int]bool
	flowVersions    map[string]map[int]bool
	tasks           map[uuid.UUID]uuid.UUID // task id -> dataset id
	flows           map[uuid.UUID]bool
	runs            map[uuid.UUID]string
}

func newFakeGuardStore() *fakeGuardStore {
	return &fakeGuardStore{
		datasets: make(map[uuid.UUID]struct {
			version int
			status  string
		}),
		datasetVersions: make(map[string]map[int]bool),
		flowVersions:    make(map[string]map[int]bool),
		tasks:           make(map[uuid.UUID]uuid.UUID),
		flows:           make(map[uuid.UUID]bool),
		runs:            make(map[uuid.UUID]string),
	}
}

func (f *fakeGuardStore) addDataset(name string, version int, status string) uuid.UUID {
	id := uuid.New()
	f.datasets[id] = struct {
		version int
		status  string
	}{version, status}
	if f.datasetVersions[name] == nil {
		f.datasetVersions[name] = make(map[int]bool)
	}
	f.datasetVersions[name][version] = true
	return id
}

func (f *fakeGuardStore) DatasetState(ctx context.Context, id uuid.UUID) (int, string, bool, error) {
	d, ok := f.datasets[id]
	return d.version, d.status, ok, nil
}

func (f *fakeGuardStore) DatasetVersionExists(ctx context.Context, name string, version int) (bool, error) {
	return f.datasetVersions[name][version], nil
}

func (f *fakeGuardStore) NextDatasetVersion(ctx context.Context, name string) (int, error) {
	max := 0
	for v := range f.datasetVersions[name] {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

func (f *fakeGuardStore) FlowVersionExists(ctx context.Context, name string, version int) (bool, error) {
	return f.flowVersions[name][version], nil
}

func (f *fakeGuardStore) NextFlowVersion(ctx context.Context, name string) (int, error) {
	max := 0
	for v := range f.flowVersions[name] {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

func (f *fakeGuardStore) TaskState(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	datasetID, ok := f.tasks[id]
	return datasetID, ok, nil
}

func (f *fakeGuardStore) FlowExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.flows[id], nil
}

func (f *fakeGuardStore) RunState(ctx context.Context, id uuid.UUID) (string, bool, error) {
	status, ok := f.runs[id]
	return status, ok, nil
}

func expectConsistency(t *testing.T, err error) *ConsistencyError {
	t.Helper()
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	return consistency
}

func TestGuardDatasetUploadAssignsNextVersion(t *testing.T) {
	store := newFakeGuardStore()
	store.addDataset("anneal", 1, models.DatasetStatusActive)
	store.addDataset("anneal", 2, models.DatasetStatusActive)
	guard := NewGuard(store)

	version, err := guard.CheckDatasetUpload(context.Background(), "anneal", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 3 {
		t.Fatalf("expected version 3, got %d", version)
	}

	version, err = guard.CheckDatasetUpload(context.Background(), "fresh", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1 for new name, got %d", version)
	}
}

func TestGuardDatasetUploadRejectsDuplicateVersion(t *testing.T) {
	store := newFakeGuardStore()
	store.addDataset("anneal", 1, models.DatasetStatusActive)
	guard := NewGuard(store)

	_, err := guard.CheckDatasetUpload(context.Background(), "anneal", 1)
	expectConsistency(t, err)

	if _, err := guard.CheckDatasetUpload(context.Background(), "anneal", 2); err != nil {
		t.Fatalf("distinct version should pass, got %v", err)
	}
}

func TestGuardTaskCreate(t *testing.T) {
	store := newFakeGuardStore()
	active := store.addDataset("anneal", 2, models.DatasetStatusActive)
	deactivated := store.addDataset("old", 1, models.DatasetStatusDeactivated)
	guard := NewGuard(store)
	ctx := context.Background()

	if err := guard.CheckTaskCreate(ctx, active, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectConsistency(t, guard.CheckTaskCreate(ctx, uuid.New(), 1))  // missing dataset
	expectConsistency(t, guard.CheckTaskCreate(ctx, active, 1))      // wrong version
	expectConsistency(t, guard.CheckTaskCreate(ctx, deactivated, 1)) // deactivated
}

func TestGuardRunSubmit(t *testing.T) {
	store := newFakeGuardStore()
	activeDS := store.addDataset("anneal", 1, models.DatasetStatusActive)
	deadDS := store.addDataset("old", 1, models.DatasetStatusDeactivated)

	goodTask := uuid.New()
	store.tasks[goodTask] = activeDS
	deadTask := uuid.New()
	store.tasks[deadTask] = deadDS

	flow := uuid.New()
	store.flows[flow] = true

	guard := NewGuard(store)
	ctx := context.Background()

	if err := guard.CheckRunSubmit(ctx, goodTask, flow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectConsistency(t, guard.CheckRunSubmit(ctx, uuid.New(), flow))     // missing task
	expectConsistency(t, guard.CheckRunSubmit(ctx, deadTask, flow))       // deprecated task
	expectConsistency(t, guard.CheckRunSubmit(ctx, goodTask, uuid.New())) // missing flow
}

func TestGuardRunTransition(t *testing.T) {
	store := newFakeGuardStore()
	pending := uuid.New()
	evaluated := uuid.New()
	store.runs[pending] = models.RunStatusPending
	store.runs[evaluated] = models.RunStatusEvaluated

	guard := NewGuard(store)
	ctx := context.Background()

	if err := guard.CheckRunTransition(ctx, pending, models.RunStatusEvaluated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := guard.CheckRunTransition(ctx, pending, models.RunStatusFailed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectConsistency(t, guard.CheckRunTransition(ctx, evaluated, models.RunStatusFailed))
	expectConsistency(t, guard.CheckRunTransition(ctx, pending, models.RunStatusPending))

	var notFound *NotFoundError
	if err := guard.CheckRunTransition(ctx, uuid.New(), models.RunStatusFailed); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestGuardDatasetTransition(t *testing.T) {
	guard := NewGuard(newFakeGuardStore())

	if err := guard.CheckDatasetTransition(models.DatasetStatusActive, models.DatasetStatusDeactivated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectConsistency(t, guard.CheckDatasetTransition(models.DatasetStatusDeactivated, models.DatasetStatusActive))
	expectConsistency(t, guard.CheckDatasetTransition(models.DatasetStatusActive, "archived"))
}
