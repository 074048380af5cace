package pseudonym

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/db"
	"github.com/ziadkadry99/auditq/internal/rules"
)

// seqGenerator hands out predictable ids and pseudonyms.
type seqGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *seqGenerator) ID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("m-%d", g.n)
}

func (g *seqGenerator) Pseudonym(c Category) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s_%04d", strings.ToUpper(string(c)), g.n)
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	set, err := rules.Default()
	require.NoError(t, err)
	d, err := NewDetector(set.Pseudonym)
	require.NoError(t, err)
	return d
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithGenerator(&seqGenerator{})}, opts...)
	return NewService(store, newDetector(t), opts...)
}

func TestPseudonymizeStableWithinSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	out1, refs1, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)
	out2, refs2, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)

	require.Len(t, refs1, 1)
	assert.Equal(t, refs1, refs2)
	assert.Equal(t, out1, out2)
	p := out1.(map[string]any)["owner"].(string)
	assert.True(t, strings.HasPrefix(p, "PERSON_"), p)
	assert.NotContains(t, p, "John")

	answer := "The main risk sits with " + p + ", who owns most open items."
	assert.Equal(t, "The main risk sits with John Doe, who owns most open items.", svc.Depseudonymize(ctx, answer, refs1))
}

func TestPseudonymizeIsolatedAcrossSessions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	outA, refsA, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "a")
	require.NoError(t, err)
	outB, refsB, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "b")
	require.NoError(t, err)

	pA := outA.(map[string]any)["owner"].(string)
	pB := outB.(map[string]any)["owner"].(string)
	assert.NotEqual(t, pA, pB)

	assert.Equal(t, "John Doe", svc.Depseudonymize(ctx, pA, refsA))
	assert.Equal(t, "John Doe", svc.Depseudonymize(ctx, pB, refsB))
	// Refs from one session do not resolve the other's pseudonyms.
	assert.Equal(t, pB, svc.Depseudonymize(ctx, pB, refsA))
}

func TestPseudonymizeNestedPayload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	payload := map[string]any{
		"question": "Why does Ada Obi own so many findings?",
		"findings": []any{
			map[string]any{
				"id":               "FND-2024-001",
				"title":            "Missing approvals at the Lagos office",
				"owner":            "Ada Obi",
				"location":         "Lagos",
				"financial_impact": 125000.0,
				"description":      "Raised by Mr Smith; exposure of $125,000 flagged in FND-2024-001.",
				"severity":         "High",
			},
		},
	}

	out, refs, err := svc.Pseudonymize(ctx, payload, "s1")
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	rendered := fmt.Sprint(out)
	for _, secret := range []string{"Ada Obi", "Lagos", "FND-2024-001", "$125,000", "Mr Smith", "125000"} {
		assert.NotContains(t, rendered, secret)
	}
	finding := out.(map[string]any)["findings"].([]any)[0].(map[string]any)
	assert.Equal(t, "High", finding["severity"])
	assert.IsType(t, "", finding["financial_impact"])
	assert.True(t, strings.HasPrefix(finding["financial_impact"].(string), "AMOUNT_"))

	// The original payload is untouched.
	assert.Equal(t, "Ada Obi", payload["findings"].([]any)[0].(map[string]any)["owner"])

	// Round trip through the answer text.
	restored := svc.Depseudonymize(ctx, finding["description"].(string), refs)
	assert.Equal(t, "Raised by Mr Smith; exposure of $125,000 flagged in FND-2024-001.", restored)
	assert.Equal(t, "Why does Ada Obi own so many findings?",
		svc.Depseudonymize(ctx, out.(map[string]any)["question"].(string), refs))
}

func TestPseudonymizeStructPayload(t *testing.T) {
	type record struct {
		Owner string `json:"owner"`
		Title string `json:"title"`
	}
	svc := newTestService(t, NewMemoryStore())

	out, refs, err := svc.Pseudonymize(context.Background(), []record{{Owner: "Jane Roe", Title: "Late review"}}, "s1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	row := out.([]any)[0].(map[string]any)
	assert.Equal(t, "Late review", row["title"])
	assert.NotEqual(t, "Jane Roe", row["owner"])
}

func TestPseudonymizeNoEntities(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	out, refs, err := svc.Pseudonymize(context.Background(), map[string]any{"question": "what are the trends?"}, "s1")
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, map[string]any{"question": "what are the trends?"}, out)
}

func TestReplacementRespectsWordBoundaries(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	out, _, err := svc.Pseudonymize(context.Background(), map[string]any{
		"location": "Rome",
		"note":     "Rome and Romeo are different",
	}, "s1")
	require.NoError(t, err)
	note := out.(map[string]any)["note"].(string)
	assert.Contains(t, note, "Romeo")
	assert.NotContains(t, note, "Rome ")
}

func TestDepseudonymizeFailsOpen(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryStore())

	text := "PERSON_9999 mentioned LOCATION_0001"
	assert.Equal(t, text, svc.Depseudonymize(ctx, text, []MappingRef{{ID: "missing", Pseudonym: "PERSON_9999", Category: Person}}))

	failing := newTestService(t, failingStore{NewMemoryStore()})
	assert.Equal(t, text, failing.Depseudonymize(ctx, text, []MappingRef{{ID: "x", Pseudonym: "PERSON_9999"}}))
}

type failingStore struct{ *MemoryStore }

func (failingStore) Get(context.Context, []string) ([]Mapping, error) {
	return nil, errors.New("store down")
}

// collidingGenerator returns the same pseudonym a few times before moving on.
type collidingGenerator struct {
	seqGenerator
	repeats int
}

func (g *collidingGenerator) Pseudonym(c Category) string {
	g.mu.Lock()
	if g.repeats > 0 {
		g.repeats--
		g.mu.Unlock()
		return "PERSON_DUP"
	}
	g.mu.Unlock()
	return g.seqGenerator.Pseudonym(c)
}

func TestPseudonymCollisionRegenerates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, newDetector(t), WithGenerator(&collidingGenerator{repeats: 2}))

	_, refs1, err := svc.Pseudonymize(ctx, map[string]any{"owner": "Ann Lee"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "PERSON_DUP", refs1[0].Pseudonym)

	// The second value draws PERSON_DUP once more, collides, then regenerates.
	_, refs2, err := svc.Pseudonymize(ctx, map[string]any{"owner": "Bo Chan"}, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, "PERSON_DUP", refs2[0].Pseudonym)
	assert.Equal(t, 2, store.Len())
}

func TestPseudonymCollisionGivesUp(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), newDetector(t), WithGenerator(&collidingGenerator{repeats: 10}))

	_, _, err := svc.Pseudonymize(ctx, map[string]any{"owner": "Ann Lee"}, "s1")
	require.NoError(t, err)
	_, _, err = svc.Pseudonymize(ctx, map[string]any{"owner": "Bo Chan"}, "s1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestExpiredMappingIsRegenerated(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	svc := newTestService(t, store, WithRetention(time.Hour), WithClock(func() time.Time { return now }))

	_, refs1, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, refs2, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, refs1[0].Pseudonym, refs2[0].Pseudonym)
	assert.Equal(t, 1, store.Len())
}

func TestOnCreateCallback(t *testing.T) {
	var created []Category
	svc := newTestService(t, NewMemoryStore(), OnCreate(func(c Category) { created = append(created, c) }))

	ctx := context.Background()
	_, _, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe", "location": "Oslo"}, "s1")
	require.NoError(t, err)
	_, _, err = svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Category{Person, Location}, created)
}

func TestConcurrentFirstEncounterCreatesOneMapping(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			database, err := db.OpenMemory()
			require.NoError(t, err)
			t.Cleanup(func() { database.Close() })
			return NewSQLStore(database)
		},
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, mk(t))
			ctx := context.Background()

			const workers = 8
			results := make([]string, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, refs, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
					if assert.NoError(t, err) && assert.Len(t, refs, 1) {
						results[i] = refs[0].Pseudonym
					}
				}(i)
			}
			wg.Wait()
			for _, p := range results {
				assert.Equal(t, results[0], p)
			}
		})
	}
}

func TestSQLStore(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	store := NewSQLStore(database)
	now := time.Now().Truncate(time.Millisecond)

	m := Mapping{ID: "m1", SessionID: "s1", Category: Person, Original: "John Doe", Pseudonym: "PERSON_0001", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	got, created, err := store.GetOrCreate(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, m.ID, got.ID)
	assert.True(t, got.ExpiresAt.Equal(m.ExpiresAt))

	// Same key: the existing row wins.
	again := m
	again.ID, again.Pseudonym = "m2", "PERSON_0002"
	got, created, err = store.GetOrCreate(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "PERSON_0001", got.Pseudonym)

	// Different key, taken pseudonym.
	clash := Mapping{ID: "m3", SessionID: "s1", Category: Person, Original: "Jane Roe", Pseudonym: "PERSON_0001", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	_, _, err = store.GetOrCreate(ctx, clash)
	assert.ErrorIs(t, err, ErrConflict)

	// Same pseudonym in another session is fine.
	other := clash
	other.SessionID = "s2"
	_, created, err = store.GetOrCreate(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)

	loaded, err := store.Get(ctx, []string{"m1", "m3", "nope"})
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	n, err := store.DeleteSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Purge(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err = store.Get(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLStoreReplacesExpiredRow(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	store := NewSQLStore(database)
	past := time.Now().Add(-2 * time.Hour)

	_, _, err = store.GetOrCreate(ctx, Mapping{ID: "old", SessionID: "s1", Category: Amount, Original: "500", Pseudonym: "AMOUNT_OLD", CreatedAt: past, ExpiresAt: past.Add(time.Hour)})
	require.NoError(t, err)

	now := time.Now()
	got, created, err := store.GetOrCreate(ctx, Mapping{ID: "new", SessionID: "s1", Category: Amount, Original: "500", Pseudonym: "AMOUNT_NEW", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "AMOUNT_NEW", got.Pseudonym)
}

func TestSQLStoreExpiryFollowsServiceClock(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	store := NewSQLStore(database)
	// Far in the future relative to the wall clock.
	now := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(t, store, WithRetention(time.Hour), WithClock(func() time.Time { return now }))

	_, refs1, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, refs2, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, refs1[0].Pseudonym, refs2[0].Pseudonym)

	now = now.Add(time.Hour)
	_, refs3, err := svc.Pseudonymize(ctx, map[string]any{"owner": "John Doe"}, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, refs1[0].Pseudonym, refs3[0].Pseudonym)
}

func TestJanitorPurges(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	_, _, err := store.GetOrCreate(context.Background(), Mapping{ID: "a", SessionID: "s", Category: Person, Original: "x", Pseudonym: "P", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	svc := NewService(store, newDetector(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(svc, time.Hour, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestDetector(t *testing.T) {
	d := newDetector(t)
	got := d.Detect(map[string]any{
		"owner":  "Ann Lee",
		"amount": 0.0,
		"notes":  "Please contact Jo Park at the Berlin site about $2.5M and 300 EUR.",
	})
	assert.Equal(t, []Entity{
		{Person, "Jo Park"},
		{Amount, "$2.5M"},
		{Amount, "300 EUR"},
		{Location, "Berlin"},
		{Person, "Ann Lee"},
	}, got)
}

func TestNewDetectorRejectsBadRules(t *testing.T) {
	_, err := NewDetector(rules.Pseudonym{Patterns: []rules.EntityRule{{Category: "person", Pattern: "("}}})
	assert.Error(t, err)
	_, err = NewDetector(rules.Pseudonym{Patterns: []rules.EntityRule{{Category: "person", Pattern: "abc", Group: 1}}})
	assert.Error(t, err)
}

func TestRandomGenerator(t *testing.T) {
	g := RandomGenerator{}
	p := g.Pseudonym(Location)
	assert.Regexp(t, `^LOCATION_[0-9A-F]{8}$`, p)
	assert.NotEqual(t, g.ID(), g.ID())
}
