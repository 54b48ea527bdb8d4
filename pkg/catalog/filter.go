package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpIsNull   Operator = "is_null"
)

// Clause is one raw client-supplied filter triple, before validation.
type Clause struct {
	Field    string
	Operator string
	Value    string
}

// Predicate is a validated, typed filter clause. Values are coerced to the
// field's storage type before any query construction, so raw client strings
// never reach SQL.
type Predicate struct {
	Field  string
	Column string
	Op     Operator
	Value  interface{}   // single-value operators
	Values []interface{} // in
	IsNull bool          // is_null: true = IS NULL, false = IS NOT NULL
}

// ParseFilters validates an ordered clause list against the field registry
// of one entity kind. Clauses combine with logical AND; OR and grouping are
// not supported.
func ParseFilters(kind Kind, clauses []Clause) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(clauses))
	for _, c := range clauses {
		field, ok := lookupField(kind, c.Field)
		if !ok {
			return nil, &UnknownFieldError{Kind: kind, Field: c.Field}
		}

		op := Operator(c.Operator)
		if err := checkOperator(field, c.Field, op); err != nil {
			return nil, err
		}

		pred := Predicate{Field: c.Field, Column: field.Column, Op: op}
		switch op {
		case OpIsNull:
			want, err := parseIsNull(c.Value)
			if err != nil {
				return nil, &TypeMismatchError{Field: c.Field, Value: c.Value, Reason: "is_null takes true or false"}
			}
			pred.IsNull = want
		case OpIn:
			raw := strings.Split(c.Value, ",")
			if len(raw) == 1 && strings.TrimSpace(raw[0]) == "" {
				return nil, &TypeMismatchError{Field: c.Field, Value: c.Value, Reason: "in requires at least one value"}
			}
			values := make([]interface{}, 0, len(raw))
			for _, item := range raw {
				v, err := coerceValue(field, c.Field, strings.TrimSpace(item))
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
			pred.Values = values
		case OpContains:
			pred.Value = c.Value
		default:
			v, err := coerceValue(field, c.Field, c.Value)
			if err != nil {
				return nil, err
			}
			pred.Value = v
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func checkOperator(f Field, name string, op Operator) error {
	switch op {
	case OpEq, OpNe, OpIn:
		return nil
	case OpLt, OpLte, OpGt, OpGte:
		// Strings compare lexicographically, the same ordering the
		// keyset bound uses. Uuid ids carry no client-meaningful order.
		switch f.Type {
		case FieldString, FieldInt, FieldFloat, FieldTime:
			return nil
		}
		return &UnsupportedOperatorError{Field: name, Operator: string(op)}
	case OpContains:
		if f.Type == FieldString {
			return nil
		}
		return &TypeMismatchError{Field: name, Value: string(op), Reason: "contains only applies to string fields"}
	case OpIsNull:
		if f.Nullable {
			return nil
		}
		return &UnsupportedOperatorError{Field: name, Operator: string(op)}
	}
	return &UnsupportedOperatorError{Field: name, Operator: string(op)}
}

// coerceValue turns the raw wire string into the field's storage type.
// The cursor codec reuses it so keyset bounds go through the same path.
func coerceValue(f Field, name, raw string) (interface{}, error) {
	switch f.Type {
	case FieldString:
		return raw, nil
	case FieldInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &TypeMismatchError{Field: name, Value: raw, Reason: "expected integer"}
		}
		return v, nil
	case FieldFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &TypeMismatchError{Field: name, Value: raw, Reason: "expected number"}
		}
		return v, nil
	case FieldTime:
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, &TypeMismatchError{Field: name, Value: raw, Reason: "expected RFC3339 timestamp"}
		}
		return v.UTC(), nil
	case FieldUUID:
		v, err := uuid.Parse(raw)
		if err != nil {
			return nil, &TypeMismatchError{Field: name, Value: raw, Reason: "expected uuid"}
		}
		return v, nil
	}
	return nil, &TypeMismatchError{Field: name, Value: raw, Reason: "unhandled field type"}
}

func parseIsNull(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, strconv.ErrSyntax
}
