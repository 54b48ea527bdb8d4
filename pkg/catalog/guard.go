package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
)

// GuardStore is the read surface the consistency guard needs. The
// repository implements it on the write transaction, so every check and the
// subsequent insert/update see the same snapshot. DB unique indexes back
// the uniqueness checks against races the snapshot cannot see.
type GuardStore interface {
	// DatasetState reports the version and status of a dataset row, or
	// found=false if the id does not resolve.
	DatasetState(ctx context.Context, id uuid.UUID) (version int, status string, found bool, err error)
	DatasetVersionExists(ctx context.Context, name string, version int) (bool, error)
	NextDatasetVersion(ctx context.Context, name string) (int, error)
	FlowVersionExists(ctx context.Context, name string, version int) (bool, error)
	NextFlowVersion(ctx context.Context, name string) (int, error)
	// TaskState reports the dataset reference of a task, or found=false.
	TaskState(ctx context.Context, id uuid.UUID) (datasetID uuid.UUID, found bool, err error)
	FlowExists(ctx context.Context, id uuid.UUID) (bool, error)
	RunState(ctx context.Context, id uuid.UUID) (status string, found bool, err error)
}

// Guard validates cross-entity references, uniqueness, and status
// transitions before a write commits. Violations abort the transaction.
type Guard struct {
	store GuardStore
}

func NewGuard(store GuardStore) *Guard {
	return &Guard{store: store}
}

// CheckDatasetUpload enforces (name, version) uniqueness. A zero requested
// version means "assign the next one"; the returned version is what the
// caller must persist.
func (g *Guard) CheckDatasetUpload(ctx context.Context, name string, requested int) (int, error) {
	if requested == 0 {
		next, err := g.store.NextDatasetVersion(ctx, name)
		if err != nil {
			return 0, err
		}
		return next, nil
	}
	exists, err := g.store.DatasetVersionExists(ctx, name, requested)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, &ConsistencyError{
			Constraint:     "dataset name/version unique",
			OffendingValue: fmt.Sprintf("%s v%d", name, requested),
		}
	}
	return requested, nil
}

// CheckTaskCreate verifies the referenced dataset exists at the referenced
// version and is still accepting new tasks.
func (g *Guard) CheckTaskCreate(ctx context.Context, datasetID uuid.UUID, datasetVersion int) error {
	version, status, found, err := g.store.DatasetState(ctx, datasetID)
	if err != nil {
		return err
	}
	if !found {
		return &ConsistencyError{Constraint: "task references existing dataset", OffendingValue: datasetID.String()}
	}
	if version != datasetVersion {
		return &ConsistencyError{
			Constraint:     "task references dataset at its recorded version",
			OffendingValue: fmt.Sprintf("%s v%d (actual v%d)", datasetID, datasetVersion, version),
		}
	}
	if status == models.DatasetStatusDeactivated {
		return &ConsistencyError{Constraint: "task references active dataset", OffendingValue: datasetID.String()}
	}
	return nil
}

// CheckFlowRegister mirrors CheckDatasetUpload for flows.
func (g *Guard) CheckFlowRegister(ctx context.Context, name string, requested int) (int, error) {
	if requested == 0 {
		next, err := g.store.NextFlowVersion(ctx, name)
		if err != nil {
			return 0, err
		}
		return next, nil
	}
	exists, err := g.store.FlowVersionExists(ctx, name, requested)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, &ConsistencyError{
			Constraint:     "flow name/version unique",
			OffendingValue: fmt.Sprintf("%s v%d", name, requested),
		}
	}
	return requested, nil
}

// CheckRunSubmit verifies the referenced task and flow resolve and are not
// deprecated. A task counts as deprecated once its dataset is deactivated.
func (g *Guard) CheckRunSubmit(ctx context.Context, taskID, flowID uuid.UUID) error {
	datasetID, found, err := g.store.TaskState(ctx, taskID)
	if err != nil {
		return err
	}
	if !found {
		return &ConsistencyError{Constraint: "run references existing task", OffendingValue: taskID.String()}
	}

	_, status, dsFound, err := g.store.DatasetState(ctx, datasetID)
	if err != nil {
		return err
	}
	if dsFound && status == models.DatasetStatusDeactivated {
		return &ConsistencyError{Constraint: "run references non-deprecated task", OffendingValue: taskID.String()}
	}

	flowFound, err := g.store.FlowExists(ctx, flowID)
	if err != nil {
		return err
	}
	if !flowFound {
		return &ConsistencyError{Constraint: "run references existing flow", OffendingValue: flowID.String()}
	}
	return nil
}

// CheckRunTransition enforces the run state machine: pending moves to
// exactly one terminal status and never reverses.
func (g *Guard) CheckRunTransition(ctx context.Context, runID uuid.UUID, next string) error {
	current, found, err := g.store.RunState(ctx, runID)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Kind: KindRun, ID: runID.String()}
	}
	if current != models.RunStatusPending {
		return &ConsistencyError{
			Constraint:     "run status transitions only from pending",
			OffendingValue: fmt.Sprintf("%s -> %s", current, next),
		}
	}
	if next != models.RunStatusEvaluated && next != models.RunStatusFailed {
		return &ConsistencyError{
			Constraint:     "run status transitions to evaluated or failed",
			OffendingValue: next,
		}
	}
	return nil
}

// CheckDatasetTransition enforces the dataset state machine. active ->
// deactivated is the only legal move; deactivation is permanent.
func (g *Guard) CheckDatasetTransition(current, next string) error {
	if current == models.DatasetStatusActive && next == models.DatasetStatusDeactivated {
		return nil
	}
	return &ConsistencyError{
		Constraint:     "dataset status transitions only active -> deactivated",
		OffendingValue: fmt.Sprintf("%s -> %s", current, next),
	}
}
