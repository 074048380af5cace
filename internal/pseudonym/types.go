// Package pseudonym replaces sensitive domain values with session-stable
// pseudonyms before record content reaches the model, and restores them in
// the model's answer.
package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the kind of entity a pseudonym hides.
type Category string

const (
	Person     Category = "person"
	Amount     Category = "amount"
	Identifier Category = "identifier"
	Location   Category = "location"
)

// ErrConflict is returned by a store when a candidate pseudonym is already
// taken within the session.
var ErrConflict = errors.New("pseudonym mapping conflict")

// Mapping is one persisted (session, category, original) → pseudonym row.
type Mapping struct {
	ID        string
	SessionID string
	Category  Category
	Original  string
	Pseudonym string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the mapping has passed its retention window.
func (m Mapping) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// asOf is the instant a candidate was minted. Stores judge expiry against
// it so the service clock applies to every backend.
func (m Mapping) asOf() time.Time {
	if m.CreatedAt.IsZero() {
		return time.Now()
	}
	return m.CreatedAt
}

// MappingRef points at a mapping without carrying its original value, so
// it can travel with a response.
type MappingRef struct {
	ID        string   `json:"id"`
	Pseudonym string   `json:"pseudonym"`
	Category  Category `json:"category"`
}

// Store persists mappings. GetOrCreate must be atomic per key: when a live
// mapping for (SessionID, Category, Original) exists it is returned and the
// candidate discarded; otherwise the candidate is stored. An expired mapping
// is replaced. ErrConflict means the candidate's pseudonym is taken.
type Store interface {
	GetOrCreate(ctx context.Context, candidate Mapping) (Mapping, bool, error)
	Get(ctx context.Context, ids []string) ([]Mapping, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Generator mints mapping ids and pseudonyms.
type Generator interface {
	ID() string
	Pseudonym(c Category) string
}

// RandomGenerator produces category-prefixed random tokens such as
// PERSON_3F2A9C1B.
type RandomGenerator struct{}

func (RandomGenerator) ID() string { return uuid.NewString() }

func (RandomGenerator) Pseudonym(c Category) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%X", strings.ToUpper(string(c)), id[:4])
}
