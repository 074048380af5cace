package query

import (
	"fmt"
	"strings"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Question renders SQLite style "?" parameters.
func Question(int) string { return "?" }

// Dollar renders PostgreSQL style "$n" parameters.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

const slot = "\x00"

type condition struct {
	clause string
	args   []any
}

// SortField represents a single column in an ORDER BY clause.
type SortField struct {
	Field      string
	Descending bool
}

// Builder constructs SQL queries with a fluent API and numbers parameters
// for the configured dialect.
type Builder struct {
	projection  *ProjectionMap
	placeholder Placeholder
	like        string
	conditions  []condition
	orderBy     []SortField
}

// NewBuilder creates a Builder for the given projection. like is the
// case-insensitive match operator ("ILIKE" for postgres, "LIKE" for sqlite).
func NewBuilder(projection *ProjectionMap, placeholder Placeholder, like string, defaultSort ...SortField) *Builder {
	if placeholder == nil {
		placeholder = Question
	}
	if like == "" {
		like = "LIKE"
	}
	return &Builder{
		projection:  projection,
		placeholder: placeholder,
		like:        like,
		orderBy:     defaultSort,
	}
}

// OrderBy replaces the sort order.
func (b *Builder) OrderBy(fields ...SortField) *Builder {
	b.orderBy = fields
	return b
}

// WhereEquals adds an equality condition. No-op for nil values.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if value == nil {
		return b
	}
	b.conditions = append(b.conditions, condition{
		clause: fmt.Sprintf("%s = %s", b.projection.Column(field), slot),
		args:   []any{value},
	})
	return b
}

// WhereIn adds an IN condition. A single value collapses to equality.
// No-op for empty slices.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	switch len(values) {
	case 0:
		return b
	case 1:
		return b.WhereEquals(field, values[0])
	}
	slots := make([]string, len(values))
	for i := range values {
		slots[i] = slot
	}
	b.conditions = append(b.conditions, condition{
		clause: fmt.Sprintf("%s IN (%s)", b.projection.Column(field), strings.Join(slots, ", ")),
		args:   values,
	})
	return b
}

// WhereRange adds inclusive lower and/or upper bounds. Nil bounds are skipped.
func (b *Builder) WhereRange(field string, min, max any) *Builder {
	col := b.projection.Column(field)
	if min != nil {
		b.conditions = append(b.conditions, condition{
			clause: fmt.Sprintf("%s >= %s", col, slot),
			args:   []any{min},
		})
	}
	if max != nil {
		b.conditions = append(b.conditions, condition{
			clause: fmt.Sprintf("%s <= %s", col, slot),
			args:   []any{max},
		})
	}
	return b
}

// WhereContains adds a case-insensitive substring match. No-op for empty values.
func (b *Builder) WhereContains(field, value string) *Builder {
	if value == "" {
		return b
	}
	b.conditions = append(b.conditions, condition{
		clause: fmt.Sprintf("%s %s %s", b.projection.Column(field), b.like, slot),
		args:   []any{"%" + value + "%"},
	})
	return b
}

// Build returns a SELECT with the current conditions, ordering and limit.
// limit <= 0 means unbounded.
func (b *Builder) Build(limit int) (string, []any) {
	where, args := b.buildWhere()
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s",
		b.projection.Columns(), b.projection.From(), where, b.buildOrderBy())
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return sql, args
}

// BuildCount returns a COUNT(*) query with the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.buildWhere()
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.projection.From(), where), args
}

// BuildGroupCount returns value/count pairs for field, largest groups first.
func (b *Builder) BuildGroupCount(field string) (string, []any) {
	where, args := b.buildWhere()
	col := b.projection.Column(field)
	sql := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s ORDER BY COUNT(*) DESC, %s ASC",
		col, b.projection.From(), where, col, col)
	return sql, args
}

// BuildSingle returns a SELECT for a single record by field.
func (b *Builder) BuildSingle(field string, value any) (string, []any) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		b.projection.Columns(), b.projection.From(), b.projection.Column(field), b.placeholder(1))
	return sql, []any{value}
}

func (b *Builder) buildOrderBy() string {
	if len(b.orderBy) == 0 {
		return ""
	}
	parts := make([]string, len(b.orderBy))
	for i, f := range b.orderBy {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", b.projection.Column(f.Field), dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (b *Builder) buildWhere() (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(b.conditions))
	var args []any
	n := 1
	for _, cond := range b.conditions {
		clause := cond.clause
		for _, arg := range cond.args {
			clause = strings.Replace(clause, slot, b.placeholder(n), 1)
			args = append(args, arg)
			n++
		}
		clauses = append(clauses, clause)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}
