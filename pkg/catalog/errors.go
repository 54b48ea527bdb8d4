package catalog

import (
	"fmt"
	"strings"

	"github.com/opencatalog/platform/pkg/common/models"
)

// ValidationError carries every violated field for one submission, so a
// client can fix its payload in a single round trip.
type ValidationError struct {
	Violations []models.Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type UnknownFieldError struct {
	Kind  Kind
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown filter field %q for %s", e.Field, e.Kind)
}

type UnsupportedOperatorError struct {
	Field    string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %q is not supported on field %q", e.Operator, e.Field)
}

type TypeMismatchError struct {
	Field  string
	Value  string
	Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value %q is invalid for field %q: %s", e.Value, e.Field, e.Reason)
}

// CursorMismatchError marks a pagination token that is forged, malformed,
// or issued under a different filter/sort context.
type CursorMismatchError struct {
	Reason string
}

func (e *CursorMismatchError) Error() string {
	return "cursor rejected: " + e.Reason
}

// ConsistencyError reports a referential, uniqueness, or state-machine
// violation detected before committing a write.
type ConsistencyError struct {
	Constraint     string
	OffendingValue string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation (%s): %s", e.Constraint, e.OffendingValue)
}

// IntegrityViolationError reports storage state that contradicts an
// invariant the consistency guard enforces, e.g. a run whose task row has
// vanished. It is distinct from NotFoundError so operators can tell
// corruption from normal absence.
type IntegrityViolationError struct {
	Kind Kind
	ID   string
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("integrity violation: referenced %s %s is missing", e.Kind, e.ID)
}

type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
