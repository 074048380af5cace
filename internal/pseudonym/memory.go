package pseudonym

import (
	"context"
	"sync"
	"time"
)

type mappingKey struct {
	session  string
	category Category
	original string
}

// MemoryStore keeps mappings in process. It backs tests and single-shot
// CLI runs.
type MemoryStore struct {
	mu    sync.Mutex
	byKey map[mappingKey]Mapping
	byID  map[string]mappingKey
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[mappingKey]Mapping),
		byID:  make(map[string]mappingKey),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, c Mapping) (Mapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey{c.SessionID, c.Category, c.Original}
	if m, ok := s.byKey[key]; ok {
		if !m.Expired(c.asOf()) {
			return m, false, nil
		}
		s.remove(key)
	}
	for k, m := range s.byKey {
		if k.session == c.SessionID && m.Pseudonym == c.Pseudonym {
			return Mapping{}, false, ErrConflict
		}
	}
	if _, taken := s.byID[c.ID]; taken {
		return Mapping{}, false, ErrConflict
	}
	s.byKey[key] = c
	s.byID[c.ID] = key
	return c, true, nil
}

func (s *MemoryStore) Get(_ context.Context, ids []string) ([]Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Mapping, 0, len(ids))
	for _, id := range ids {
		if key, ok := s.byID[id]; ok {
			out = append(out, s.byKey[key])
		}
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, m := range s.byKey {
		if !before.Before(m.ExpiresAt) {
			s.remove(key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.byKey {
		if key.session == sessionID {
			s.remove(key)
			n++
		}
	}
	return n, nil
}

// Len reports how many mappings are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *MemoryStore) remove(key mappingKey) {
	delete(s.byID, s.byKey[key].ID)
	delete(s.byKey, key)
}
