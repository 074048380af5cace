package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/auditq/internal/db"
)

// ErrNotFound is returned by GetByID for an unknown id.
var ErrNotFound = errors.New("audit entry not found")

// Store persists route audit entries.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is generated;
// a zero CreatedAt is set to now.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	fields, err := json.Marshal(nonNil(entry.FilterFields))
	if err != nil {
		return fmt.Errorf("marshalling filter fields: %w", err)
	}
	notices, err := json.Marshal(nonNil(entry.Notices))
	if err != nil {
		return fmt.Errorf("marshalling notices: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO route_audit (
			id, created_at, request_id, session_id, route, branch,
			confidence, masked_query, filter_fields, notices,
			final_state, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatedAt.UnixMilli(),
		entry.RequestID,
		entry.SessionID,
		entry.Route,
		entry.Branch,
		entry.Confidence,
		entry.MaskedQuery,
		string(fields),
		string(notices),
		entry.FinalState,
		entry.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, created_at, request_id, session_id, route, branch,
	confidence, masked_query, filter_fields, notices, final_state, duration_ms
	FROM route_audit`

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	e, err := db.QueryOne(ctx, s.db, selectColumns+" WHERE id = ?", []any{id}, scanEntry)
	if err != nil {
		return nil, db.MapError(err, ErrNotFound, err)
	}
	return e, nil
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	SessionID string
	RequestID string
	Route     string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.RequestID != "" {
		clauses = append(clauses, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.Route != "" {
		clauses = append(clauses, "route = ?")
		args = append(args, filter.Route)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if filter.Until != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.Until.UnixMilli())
	}

	query := selectColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	ptrs, err := db.QueryMany(ctx, s.db, query, args, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	entries := make([]Entry, len(ptrs))
	for i, e := range ptrs {
		entries[i] = *e
	}
	return entries, nil
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM route_audit WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting old audit entries: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(sc db.Scanner) (*Entry, error) {
	var (
		e                      Entry
		created                int64
		fieldsJSON, noticeJSON sql.NullString
	)
	err := sc.Scan(
		&e.ID, &created, &e.RequestID, &e.SessionID, &e.Route, &e.Branch,
		&e.Confidence, &e.MaskedQuery, &fieldsJSON, &noticeJSON,
		&e.FinalState, &e.DurationMS,
	)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.UnixMilli(created)

	if err := json.Unmarshal([]byte(fieldsJSON.String), &e.FilterFields); err != nil {
		e.FilterFields = nil
	}
	if err := json.Unmarshal([]byte(noticeJSON.String), &e.Notices); err != nil {
		e.Notices = nil
	}
	return &e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
