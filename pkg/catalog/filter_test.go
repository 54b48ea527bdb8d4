package catalog

import (
	"errors"
	"testing"
	"time"
)

func TestParseFiltersRejectsUnknownField(t *testing.T) {
	_, err := ParseFilters(KindTask, []Clause{{Field: "foo", Operator: "eq", Value: "bar"}})
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
	if unknown.Field != "foo" {
		t.Fatalf("expected field foo, got %q", unknown.Field)
	}
}

func TestParseFiltersRejectsUnsupportedOperator(t *testing.T) {
	cases := []Clause{
		{Field: "id", Operator: "gte", Value: "whatever"},   // ordering on uuid
		{Field: "name", Operator: "is_null", Value: "true"}, // non-nullable field
		{Field: "name", Operator: "matches", Value: "x"},    // made-up operator
	}
	for _, c := range cases {
		_, err := ParseFilters(KindDataset, []Clause{c})
		var unsupported *UnsupportedOperatorError
		if !errors.As(err, &unsupported) {
			t.Fatalf("clause %+v: expected UnsupportedOperatorError, got %v", c, err)
		}
	}
}

func TestParseFiltersRejectsTypeMismatch(t *testing.T) {
	cases := []Clause{
		{Field: "version", Operator: "eq", Value: "abc"},
		{Field: "upload_date", Operator: "gt", Value: "yesterday"},
		{Field: "id", Operator: "eq", Value: "not-a-uuid"},
		{Field: "version", Operator: "contains", Value: "1"},
	}
	for _, c := range cases {
		_, err := ParseFilters(KindDataset, []Clause{c})
		var mismatch *TypeMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("clause %+v: expected TypeMismatchError, got %v", c, err)
		}
	}
}

func TestParseFiltersCoercesTypedValues(t *testing.T) {
	preds, err := ParseFilters(KindDataset, []Clause{
		{Field: "version", Operator: "gte", Value: "3"},
		{Field: "upload_date", Operator: "lt", Value: "2024-06-01T00:00:00Z"},
		{Field: "name", Operator: "contains", Value: "anneal"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(preds))
	}
	if v, ok := preds[0].Value.(int64); !ok || v != 3 {
		t.Fatalf("expected int64(3), got %T %v", preds[0].Value, preds[0].Value)
	}
	if _, ok := preds[1].Value.(time.Time); !ok {
		t.Fatalf("expected time.Time, got %T", preds[1].Value)
	}
}

func TestParseFiltersAllowsOrderingOnStrings(t *testing.T) {
	preds, err := ParseFilters(KindDataset, []Clause{
		{Field: "name", Operator: "lt", Value: "m"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds[0].Op != OpLt || preds[0].Value != "m" {
		t.Fatalf("unexpected predicate %+v", preds[0])
	}
}

func TestParseFiltersInSplitsValues(t *testing.T) {
	preds, err := ParseFilters(KindTask, []Clause{
		{Field: "type", Operator: "in", Value: "classification, regression"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds[0].Values) != 2 {
		t.Fatalf("expected 2 values, got %v", preds[0].Values)
	}
	if preds[0].Values[1] != "regression" {
		t.Fatalf("expected trimmed value, got %q", preds[0].Values[1])
	}

	if _, err := ParseFilters(KindTask, []Clause{{Field: "type", Operator: "in", Value: ""}}); err == nil {
		t.Fatal("expected error for empty in list")
	}
}

func TestParseFiltersIsNull(t *testing.T) {
	preds, err := ParseFilters(KindRun, []Clause{
		{Field: "completed_at", Operator: "is_null", Value: "false"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds[0].IsNull {
		t.Fatal("expected IsNull=false")
	}

	preds, err = ParseFilters(KindRun, []Clause{
		{Field: "completed_at", Operator: "is_null", Value: ""},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !preds[0].IsNull {
		t.Fatal("expected empty value to mean IS NULL")
	}
}

func TestParseFilterParams(t *testing.T) {
	clauses, err := parseFilterParams([]string{
		"type:eq:classification",
		"completed_at:is_null",
		"upload_date:gt:2024-06-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(clauses))
	}
	// values containing colons must survive the split
	if clauses[2].Value != "2024-06-01T00:00:00Z" {
		t.Fatalf("unexpected value %q", clauses[2].Value)
	}

	if _, err := parseFilterParams([]string{"justafield"}); err == nil {
		t.Fatal("expected error for clause without operator")
	}
}
