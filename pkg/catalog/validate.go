package catalog

import (
	"fmt"
	"math"
	"regexp"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/models"
	"github.com/opencatalog/platform/pkg/taxonomy"
)

var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

const maxNameLength = 128

// Validator performs pure per-kind validation. Every violated field is
// collected so the client gets one comprehensive error per submission.
type Validator struct {
	tax taxonomy.Catalog
}

func NewValidator(tax taxonomy.Catalog) *Validator {
	return &Validator{tax: tax}
}

type violations []models.Violation

func (v *violations) add(field, reason string) {
	*v = append(*v, models.Violation{Field: field, Reason: reason})
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}

func (val *Validator) ValidateDataset(req models.RegisterDatasetRequest) error {
	var v violations
	if req.Name == "" {
		v.add("name", "required")
	} else if len(req.Name) > maxNameLength {
		v.add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if req.Version < 0 {
		v.add("version", "must not be negative")
	}
	if !val.tax.ValidLicence(req.Licence) {
		v.add("licence", "unrecognized licence")
	}
	if req.Visibility != "" && req.Visibility != models.VisibilityPublic && req.Visibility != models.VisibilityPrivate {
		v.add("visibility", "must be public or private")
	}
	if req.MD5Checksum != "" && !md5Pattern.MatchString(req.MD5Checksum) {
		v.add("md5_checksum", "must be a 32-character hex digest")
	}
	for i, tag := range req.Tags {
		if tag == "" {
			v.add(fmt.Sprintf("tags[%d]", i), "must not be empty")
		}
	}
	return v.err()
}

func (val *Validator) ValidateTask(req models.CreateTaskRequest) error {
	var v violations
	taskType, known := val.tax.LookupTaskType(req.Type)
	if req.Type == "" {
		v.add("type", "required")
	} else if !known {
		v.add("type", "unrecognized task type")
	}
	if req.DatasetID == uuid.Nil {
		v.add("dataset_id", "required")
	}
	if req.DatasetVersion < 1 {
		v.add("dataset_version", "must be at least 1")
	}
	if known && taskType.RequiresTarget && req.TargetFeature == "" {
		v.add("target_feature", fmt.Sprintf("required for %s tasks", req.Type))
	}
	if known && req.EstimationProcedure != "" && len(taskType.AllowedProcedures) > 0 {
		if !contains(taskType.AllowedProcedures, req.EstimationProcedure) {
			v.add("estimation_procedure", "not allowed for this task type")
		}
	}
	return v.err()
}

func (val *Validator) ValidateFlow(req models.RegisterFlowRequest) error {
	var v violations
	if req.Name == "" {
		v.add("name", "required")
	} else if len(req.Name) > maxNameLength {
		v.add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if req.Version < 0 {
		v.add("version", "must not be negative")
	}
	if req.LibraryVersion != "" && req.Library == "" {
		v.add("library", "required when library_version is set")
	}
	return v.err()
}

func (val *Validator) ValidateRun(req models.SubmitRunRequest) error {
	var v violations
	if req.TaskID == uuid.Nil {
		v.add("task_id", "required")
	}
	if req.FlowID == uuid.Nil {
		v.add("flow_id", "required")
	}
	return v.err()
}

func (val *Validator) ValidateRunStatusUpdate(req models.UpdateRunStatusRequest) error {
	var v violations
	switch req.Status {
	case models.RunStatusEvaluated:
		if len(req.Metrics) == 0 {
			v.add("metrics", "required when marking a run evaluated")
		}
	case models.RunStatusFailed:
		if req.ErrorMessage == "" {
			v.add("error_message", "required when marking a run failed")
		}
	default:
		v.add("status", "must be evaluated or failed")
	}
	for name, value := range req.Metrics {
		if name == "" {
			v.add("metrics", "metric names must not be empty")
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			v.add("metrics."+name, "must be a finite number")
		}
	}
	return v.err()
}

func (val *Validator) ValidateDatasetStatus(status string) error {
	var v violations
	if status != models.DatasetStatusDeactivated {
		v.add("status", "datasets can only transition to deactivated")
	}
	return v.err()
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
