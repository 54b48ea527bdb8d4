package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity status values. Datasets are soft-deleted only; Runs move from
// pending to exactly one terminal status.
const (
	DatasetStatusActive      = "active"
	DatasetStatusDeactivated = "deactivated"

	RunStatusPending   = "pending"
	RunStatusEvaluated = "evaluated"
	RunStatusFailed    = "failed"

	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

type Dataset struct {
	ID                     uuid.UUID `json:"id"`
	Name                   string    `json:"name"`
	Version                int       `json:"version"`
	Description            string    `json:"description,omitempty"`
	Uploader               string    `json:"uploader"`
	UploadDate             time.Time `json:"upload_date"`
	Licence                string    `json:"licence,omitempty"`
	Language               string    `json:"language,omitempty"`
	Format                 string    `json:"format,omitempty"`
	DefaultTargetAttribute string    `json:"default_target_attribute,omitempty"`
	Tags                   []string  `json:"tags,omitempty"`
	OriginalDataURL        string    `json:"original_data_url,omitempty"`
	MD5Checksum            string    `json:"md5_checksum,omitempty"`
	Visibility             string    `json:"visibility"`
	Status                 string    `json:"status"`
}

type Task struct {
	ID                  uuid.UUID              `json:"id"`
	Type                string                 `json:"type"`
	DatasetID           uuid.UUID              `json:"dataset_id"`
	DatasetVersion      int                    `json:"dataset_version"`
	EstimationProcedure string                 `json:"estimation_procedure,omitempty"`
	TargetFeature       string                 `json:"target_feature,omitempty"`
	EvaluationMeasure   string                 `json:"evaluation_measure,omitempty"`
	Config              map[string]interface{} `json:"config,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`

	// Populated only when the dataset expansion is requested.
	Dataset *Dataset `json:"dataset,omitempty"`
}

type Flow struct {
	ID              uuid.UUID              `json:"id"`
	Name            string                 `json:"name"`
	Version         int                    `json:"version"`
	ExternalVersion string                 `json:"external_version,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Library         string                 `json:"library,omitempty"`
	LibraryVersion  string                 `json:"library_version,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

type Run struct {
	ID           uuid.UUID          `json:"id"`
	TaskID       uuid.UUID          `json:"task_id"`
	FlowID       uuid.UUID          `json:"flow_id"`
	Uploader     string             `json:"uploader"`
	Setup        string             `json:"setup,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Status       string             `json:"status"`

	// Populated only when the corresponding expansion is requested.
	Task *Task `json:"task,omitempty"`
	Flow *Flow `json:"flow,omitempty"`
}

type RegisterDatasetRequest struct {
	Name                   string   `json:"name"`
	Version                int      `json:"version,omitempty"` // 0 = assign next version
	Description            string   `json:"description,omitempty"`
	Licence                string   `json:"licence,omitempty"`
	Language               string   `json:"language,omitempty"`
	Format                 string   `json:"format,omitempty"`
	DefaultTargetAttribute string   `json:"default_target_attribute,omitempty"`
	Tags                   []string `json:"tags,omitempty"`
	OriginalDataURL        string   `json:"original_data_url,omitempty"`
	MD5Checksum            string   `json:"md5_checksum,omitempty"`
	Visibility             string   `json:"visibility,omitempty"`
}

type CreateTaskRequest struct {
	Type                string                 `json:"type"`
	DatasetID           uuid.UUID              `json:"dataset_id"`
	DatasetVersion      int                    `json:"dataset_version"`
	EstimationProcedure string                 `json:"estimation_procedure,omitempty"`
	TargetFeature       string                 `json:"target_feature,omitempty"`
	EvaluationMeasure   string                 `json:"evaluation_measure,omitempty"`
	Config              map[string]interface{} `json:"config,omitempty"`
}

type RegisterFlowRequest struct {
	Name            string                 `json:"name"`
	Version         int                    `json:"version,omitempty"` // 0 = assign next version
	ExternalVersion string                 `json:"external_version,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Library         string                 `json:"library,omitempty"`
	LibraryVersion  string                 `json:"library_version,omitempty"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
}

type SubmitRunRequest struct {
	TaskID uuid.UUID `json:"task_id"`
	FlowID uuid.UUID `json:"flow_id"`
	Setup  string    `json:"setup,omitempty"`
}

type UpdateDatasetStatusRequest struct {
	Status string `json:"status"`
}

type UpdateRunStatusRequest struct {
	Status       string             `json:"status"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// ListPage is the wire shape of every list endpoint. NextCursor is null
// once the final page has been returned.
type ListPage struct {
	Items      interface{} `json:"items"`
	NextCursor *string     `json:"next_cursor"`
}

type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ErrorBody struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

type ErrorPayload struct {
	Error ErrorBody `json:"error"`
}
