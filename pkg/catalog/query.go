package catalog

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ListOptions is everything a list endpoint may vary: validated predicates,
// sort, an optional decoded cursor, the client page size, and the expansion
// set. Raw client strings never appear here.
type ListOptions struct {
	Filters []Predicate
	Sort    SortSpec
	Cursor  *Position
	Limit   int
	Expand  map[Kind]bool
}

// QueryBuilder turns ListOptions into a single bounded relational query.
type QueryBuilder struct {
	DefaultLimit int
	MaxLimit     int
}

// condition is one parameterized WHERE fragment. Kept as data so tests can
// inspect generated clauses without a database.
type condition struct {
	Expr string
	Args []interface{}
}

type builtQuery struct {
	Conditions []condition
	OrderBy    string
	Limit      int
}

// Build composes the bounded query onto tx. The returned limit is the page
// size actually enforced; the query itself fetches one extra row so the
// caller can tell whether another page exists.
func (b *QueryBuilder) Build(tx *gorm.DB, kind Kind, opts ListOptions) (*gorm.DB, int, error) {
	q, err := b.plan(kind, opts)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range q.Conditions {
		tx = tx.Where(c.Expr, c.Args...)
	}
	return tx.Order(q.OrderBy).Limit(q.Limit + 1), q.Limit, nil
}

// plan is the pure half of Build: predicates, keyset bound, sort, and limit
// as inspectable data.
func (b *QueryBuilder) plan(kind Kind, opts ListOptions) (builtQuery, error) {
	sortField, err := b.resolveSort(kind, opts.Sort)
	if err != nil {
		return builtQuery{}, err
	}

	var q builtQuery
	for _, p := range opts.Filters {
		q.Conditions = append(q.Conditions, predicateCondition(p))
	}

	if opts.Cursor != nil {
		keyset, err := keysetCondition(kind, opts.Sort, sortField, *opts.Cursor)
		if err != nil {
			return builtQuery{}, err
		}
		q.Conditions = append(q.Conditions, keyset)
	}

	q.OrderBy = orderBy(opts.Sort, sortField)
	q.Limit = b.clampLimit(opts.Limit)
	return q, nil
}

func (b *QueryBuilder) resolveSort(kind Kind, sort SortSpec) (Field, error) {
	name := sort.Field
	if name == "" {
		name = TieBreakField
	}
	f, ok := lookupField(kind, name)
	if !ok {
		return Field{}, &UnknownFieldError{Kind: kind, Field: name}
	}
	if !f.Sortable {
		return Field{}, &UnsupportedOperatorError{Field: name, Operator: "sort"}
	}
	return f, nil
}

func (b *QueryBuilder) clampLimit(limit int) int {
	if limit <= 0 {
		return b.DefaultLimit
	}
	if limit > b.MaxLimit {
		return b.MaxLimit
	}
	return limit
}

func predicateCondition(p Predicate) condition {
	switch p.Op {
	case OpEq:
		return condition{Expr: p.Column + " = ?", Args: []interface{}{p.Value}}
	case OpNe:
		return condition{Expr: p.Column + " <> ?", Args: []interface{}{p.Value}}
	case OpLt:
		return condition{Expr: p.Column + " < ?", Args: []interface{}{p.Value}}
	case OpLte:
		return condition{Expr: p.Column + " <= ?", Args: []interface{}{p.Value}}
	case OpGt:
		return condition{Expr: p.Column + " > ?", Args: []interface{}{p.Value}}
	case OpGte:
		return condition{Expr: p.Column + " >= ?", Args: []interface{}{p.Value}}
	case OpIn:
		return condition{Expr: p.Column + " IN ?", Args: []interface{}{p.Values}}
	case OpContains:
		pattern := "%" + escapeLike(fmt.Sprintf("%v", p.Value)) + "%"
		return condition{Expr: p.Column + ` LIKE ? ESCAPE '\'`, Args: []interface{}{pattern}}
	case OpIsNull:
		if p.IsNull {
			return condition{Expr: p.Column + " IS NULL"}
		}
		return condition{Expr: p.Column + " IS NOT NULL"}
	}
	// ParseFilters only emits the operators above.
	panic(fmt.Sprintf("unreachable operator %q", p.Op))
}

// keysetCondition bounds the query strictly after the cursor position. The
// tie-break id keeps rows with duplicate sort values from repeating or
// being skipped across pages. Nullable sort columns order NULLS LAST, so a
// cursor inside the NULL block advances on the tie-break alone, and a
// cursor before it must still admit the NULL rows.
func keysetCondition(kind Kind, sort SortSpec, sortField Field, pos Position) (condition, error) {
	cmp := ">"
	if sort.Descending {
		cmp = "<"
	}

	if sortField.Column == TieBreakField {
		return condition{
			Expr: fmt.Sprintf("%s %s ?", TieBreakField, cmp),
			Args: []interface{}{pos.LastID},
		}, nil
	}

	if sortField.Nullable && pos.SortIsNull {
		return condition{
			Expr: fmt.Sprintf("(%s IS NULL AND %s %s ?)", sortField.Column, TieBreakField, cmp),
			Args: []interface{}{pos.LastID},
		}, nil
	}

	value, err := coerceValue(sortField, sort.Field, pos.SortValue)
	if err != nil {
		return condition{}, &CursorMismatchError{Reason: "cursor position does not match the sort field type"}
	}
	if sortField.Nullable {
		return condition{
			Expr: fmt.Sprintf("(%[1]s %[2]s ? OR (%[1]s = ? AND %[3]s %[2]s ?) OR %[1]s IS NULL)",
				sortField.Column, cmp, TieBreakField),
			Args: []interface{}{value, value, pos.LastID},
		}, nil
	}
	return condition{
		Expr: fmt.Sprintf("(%[1]s %[2]s ? OR (%[1]s = ? AND %[3]s %[2]s ?))",
			sortField.Column, cmp, TieBreakField),
		Args: []interface{}{value, value, pos.LastID},
	}, nil
}

func orderBy(sort SortSpec, sortField Field) string {
	dir := "ASC"
	if sort.Descending {
		dir = "DESC"
	}
	if sortField.Column == TieBreakField {
		return TieBreakField + " " + dir
	}
	if sortField.Nullable {
		return fmt.Sprintf("%s %s NULLS LAST, %s %s", sortField.Column, dir, TieBreakField, dir)
	}
	return fmt.Sprintf("%s %s, %s %s", sortField.Column, dir, TieBreakField, dir)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
