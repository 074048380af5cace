package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/auditq/internal/db"
	"github.com/ziadkadry99/auditq/internal/query"
)

var errNotFound = errors.New("mapping not found")

var mappingProjection = query.NewProjectionMap("pseudonym_mappings", "m").
	Project("id", "ID").
	Project("session_id", "SessionID").
	Project("category", "Category").
	Project("original_value", "Original").
	Project("pseudonym", "Pseudonym").
	Project("created_at", "CreatedAt").
	Project("expires_at", "ExpiresAt")

// SQLStore keeps mappings in the pseudonym_mappings table. Uniqueness of
// (session_id, category, original_value) and (session_id, pseudonym) is
// enforced by the schema, so concurrent writers converge on one row.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore creates a store backed by the given database.
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database}
}

func scanMapping(s db.Scanner) (Mapping, error) {
	var m Mapping
	var category string
	var created, expires int64
	if err := s.Scan(&m.ID, &m.SessionID, &category, &m.Original, &m.Pseudonym, &created, &expires); err != nil {
		return Mapping{}, err
	}
	m.Category = Category(category)
	m.CreatedAt = time.UnixMilli(created)
	m.ExpiresAt = time.UnixMilli(expires)
	return m, nil
}

func (s *SQLStore) builder() *query.Builder {
	return query.NewBuilder(mappingProjection, query.Question, s.db.Like())
}

// GetOrCreate clears a row for the key that expired by the candidate's
// creation time, inserts the candidate if
// the key is free, then reads back whichever row won. A missing row after
// the insert means the candidate collided on pseudonym or id.
func (s *SQLStore) GetOrCreate(ctx context.Context, c Mapping) (Mapping, bool, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pseudonym_mappings
		 WHERE session_id = ? AND category = ? AND original_value = ? AND expires_at <= ?`,
		c.SessionID, string(c.Category), c.Original, c.asOf().UnixMilli(),
	); err != nil {
		return Mapping{}, false, fmt.Errorf("clearing expired mapping: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pseudonym_mappings (id, session_id, category, original_value, pseudonym, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		c.ID, c.SessionID, string(c.Category), c.Original, c.Pseudonym,
		c.CreatedAt.UnixMilli(), c.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return Mapping{}, false, db.MapError(fmt.Errorf("inserting mapping: %w", err), errNotFound, ErrConflict)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return Mapping{}, false, fmt.Errorf("inserting mapping: %w", err)
	}

	q, args := s.builder().
		WhereEquals("SessionID", c.SessionID).
		WhereEquals("Category", string(c.Category)).
		WhereEquals("Original", c.Original).
		Build(1)
	m, err := db.QueryOne(ctx, s.db, q, args, scanMapping)
	if err != nil {
		if mapped := db.MapError(err, errNotFound, ErrConflict); errors.Is(mapped, errNotFound) {
			return Mapping{}, false, ErrConflict
		}
		return Mapping{}, false, fmt.Errorf("reading mapping: %w", err)
	}
	return m, inserted == 1 && m.ID == c.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, ids []string) ([]Mapping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	q, args := s.builder().WhereIn("ID", vals).Build(0)
	out, err := db.QueryMany(ctx, s.db, q, args, scanMapping)
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pseudonym_mappings WHERE expires_at <= ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging mappings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pseudonym_mappings WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting session mappings: %w", err)
	}
	return res.RowsAffected()
}
