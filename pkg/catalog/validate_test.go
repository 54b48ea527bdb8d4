package catalog

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
	"github.com/opencatalog/platform/pkg/taxonomy"
)

func testValidator() *Validator {
	return NewValidator(taxonomy.DefaultCatalog())
}

func violationFields(t *testing.T, err error) map[string]bool {
	t.Helper()
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := make(map[string]bool)
	for _, v := range validation.Violations {
		fields[v.Field] = true
	}
	return fields
}

func TestValidateDatasetCollectsEveryViolation(t *testing.T) {
	err := testValidator().ValidateDataset(models.RegisterDatasetRequest{
		Name:        "",
		Version:     -1,
		Licence:     "WTFPL",
		Visibility:  "internal",
		MD5Checksum: "zzz",
	})
	fields := violationFields(t, err)
	for _, want := range []string{"name", "version", "licence", "visibility", "md5_checksum"} {
		if !fields[want] {
			t.Fatalf("expected violation on %q, got %v", want, fields)
		}
	}
}

func TestValidateDatasetAcceptsMinimal(t *testing.T) {
	if err := testValidator().ValidateDataset(models.RegisterDatasetRequest{Name: "anneal"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTaskRequiresTargetForClassification(t *testing.T) {
	err := testValidator().ValidateTask(models.CreateTaskRequest{
		Type:           "classification",
		DatasetID:      uuid.New(),
		DatasetVersion: 1,
	})
	fields := violationFields(t, err)
	if !fields["target_feature"] {
		t.Fatalf("expected target_feature violation, got %v", fields)
	}
}

func TestValidateTaskRejectsUnknownTypeAndProcedure(t *testing.T) {
	err := testValidator().ValidateTask(models.CreateTaskRequest{
		Type:           "divination",
		DatasetID:      uuid.Nil,
		DatasetVersion: 0,
	})
	fields := violationFields(t, err)
	for _, want := range []string{"type", "dataset_id", "dataset_version"} {
		if !fields[want] {
			t.Fatalf("expected violation on %q, got %v", want, fields)
		}
	}

	err = testValidator().ValidateTask(models.CreateTaskRequest{
		Type:                "classification",
		DatasetID:           uuid.New(),
		DatasetVersion:      1,
		TargetFeature:       "class",
		EstimationProcedure: "vibes",
	})
	fields = violationFields(t, err)
	if !fields["estimation_procedure"] {
		t.Fatalf("expected estimation_procedure violation, got %v", fields)
	}
}

func TestValidateRunStatusUpdate(t *testing.T) {
	v := testValidator()

	if err := v.ValidateRunStatusUpdate(models.UpdateRunStatusRequest{Status: "pending"}); err == nil {
		t.Fatal("expected rejection of non-terminal status")
	}
	if err := v.ValidateRunStatusUpdate(models.UpdateRunStatusRequest{Status: models.RunStatusEvaluated}); err == nil {
		t.Fatal("expected rejection of evaluated run without metrics")
	}
	if err := v.ValidateRunStatusUpdate(models.UpdateRunStatusRequest{Status: models.RunStatusFailed}); err == nil {
		t.Fatal("expected rejection of failed run without error message")
	}

	err := v.ValidateRunStatusUpdate(models.UpdateRunStatusRequest{
		Status:  models.RunStatusEvaluated,
		Metrics: map[string]float64{"accuracy": math.NaN()},
	})
	fields := violationFields(t, err)
	if !fields["metrics.accuracy"] {
		t.Fatalf("expected NaN metric violation, got %v", fields)
	}

	if err := v.ValidateRunStatusUpdate(models.UpdateRunStatusRequest{
		Status:  models.RunStatusEvaluated,
		Metrics: map[string]float64{"accuracy": 0.97},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
