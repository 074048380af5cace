package findings

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/auditq/internal/db"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/query"
	"github.com/ziadkadry99/auditq/internal/schema"
)

var findingProjection = query.NewProjectionMap("findings", "f").
	Project("id", "id").
	Project("title", "title").
	Project("description", "description").
	Project("severity", "severity").
	Project("status", "status").
	Project("category", "category").
	Project("department", "department").
	Project("location", "location").
	Project("owner", "owner").
	Project("reported_by", "reported_by").
	Project("financial_impact", "financial_impact").
	Project("year", "year").
	Project("reported_at", "reported_at").
	Project("updated_at", "updated_at")

var newestFirst = []query.SortField{
	{Field: "updated_at", Descending: true},
	{Field: "id"},
}

// Store queries findings. Filter fields are resolved to columns through
// the schema registry.
type Store struct {
	db       *db.DB
	registry *schema.Registry
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB, registry *schema.Registry) *Store {
	return &Store{db: database, registry: registry}
}

func scanFinding(s db.Scanner) (Finding, error) {
	var f Finding
	var updated int64
	err := s.Scan(
		&f.ID, &f.Title, &f.Description, &f.Severity, &f.Status, &f.Category,
		&f.Department, &f.Location, &f.Owner, &f.ReportedBy, &f.FinancialImpact,
		&f.Year, &f.ReportedAt, &updated,
	)
	if err != nil {
		return Finding{}, err
	}
	f.UpdatedAt = time.UnixMilli(updated)
	return f, nil
}

func (s *Store) builder() *query.Builder {
	return query.NewBuilder(findingProjection, query.Question, s.db.Like(), newestFirst...)
}

// where applies a filter set to b. Fields unknown to the registry or
// without a projected column are an error rather than silently ignored.
func (s *Store) where(b *query.Builder, set filters.Set) error {
	for _, f := range set.Items() {
		field, ok := s.registry.Lookup(f.Field)
		if !ok {
			return fmt.Errorf("unknown filter field %q", f.Field)
		}
		if !findingProjection.Has(field.Column) {
			return fmt.Errorf("field %q has no column %q", f.Field, field.Column)
		}
		switch f.Op {
		case filters.OpEq:
			if len(f.Values) > 0 {
				b.WhereEquals(field.Column, f.Values[0])
			}
		case filters.OpIn:
			b.WhereIn(field.Column, f.Values)
		case filters.OpRange:
			b.WhereRange(field.Column, f.Min, f.Max)
		case filters.OpContains:
			if len(f.Values) > 0 {
				b.WhereContains(field.Column, fmt.Sprint(f.Values[0]))
			}
		default:
			return fmt.Errorf("field %q: unsupported op %q", f.Field, f.Op)
		}
	}
	return nil
}

// Get returns one finding by id.
func (s *Store) Get(ctx context.Context, id string) (Finding, error) {
	q, args := s.builder().BuildSingle("id", id)
	f, err := db.QueryOne(ctx, s.db, q, args, scanFinding)
	if err != nil {
		return Finding{}, db.MapError(err, ErrNotFound, err)
	}
	return f, nil
}

// Query returns findings matching set, newest first. limit <= 0 means
// unbounded.
func (s *Store) Query(ctx context.Context, set filters.Set, limit int) ([]Finding, error) {
	b := s.builder()
	if err := s.where(b, set); err != nil {
		return nil, err
	}
	q, args := b.Build(limit)
	out, err := db.QueryMany(ctx, s.db, q, args, scanFinding)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	return out, nil
}

// Recent returns the most recently updated findings.
func (s *Store) Recent(ctx context.Context, limit int) ([]Finding, error) {
	return s.Query(ctx, filters.Set{}, limit)
}

// Count returns how many findings match set.
func (s *Store) Count(ctx context.Context, set filters.Set) (int, error) {
	b := s.builder()
	if err := s.where(b, set); err != nil {
		return 0, err
	}
	q, args := b.BuildCount()
	n, err := db.QueryOne(ctx, s.db, q, args, func(sc db.Scanner) (int, error) {
		var n int
		err := sc.Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("counting findings: %w", err)
	}
	return n, nil
}

// Breakdown groups the findings matching set by a registry field, largest
// groups first.
func (s *Store) Breakdown(ctx context.Context, field string, set filters.Set) ([]Bucket, error) {
	def, ok := s.registry.Lookup(field)
	if !ok || !findingProjection.Has(def.Column) {
		return nil, fmt.Errorf("cannot break down by %q", field)
	}
	b := s.builder()
	if err := s.where(b, set); err != nil {
		return nil, err
	}
	q, args := b.BuildGroupCount(def.Column)
	out, err := db.QueryMany(ctx, s.db, q, args, func(sc db.Scanner) (Bucket, error) {
		var bk Bucket
		err := sc.Scan(&bk.Value, &bk.Count)
		return bk, err
	})
	if err != nil {
		return nil, fmt.Errorf("breaking down findings by %s: %w", field, err)
	}
	return out, nil
}

// Insert adds or replaces a finding. A zero UpdatedAt is set to now.
func (s *Store) Insert(ctx context.Context, f Finding) error {
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO findings (
			id, title, description, severity, status, category, department,
			location, owner, reported_by, financial_impact, year, reported_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			severity = excluded.severity,
			status = excluded.status,
			category = excluded.category,
			department = excluded.department,
			location = excluded.location,
			owner = excluded.owner,
			reported_by = excluded.reported_by,
			financial_impact = excluded.financial_impact,
			year = excluded.year,
			reported_at = excluded.reported_at,
			updated_at = excluded.updated_at`,
		f.ID, f.Title, f.Description, f.Severity, f.Status, f.Category, f.Department,
		f.Location, f.Owner, f.ReportedBy, f.FinancialImpact, f.Year, f.ReportedAt,
		f.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting finding %s: %w", f.ID, err)
	}
	return nil
}
