package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestLogAndGetByID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	entry := Entry{
		ID:           "entry-1",
		RequestID:    "req-1",
		SessionID:    "sess-1",
		Route:        "simple",
		Branch:       "low_confidence",
		Confidence:   0.72,
		MaskedQuery:  "show findings owned by <PERSON_1>",
		FilterFields: []string{"owner", "year"},
		Notices:      []string{"record_store_unavailable"},
		FinalState:   "completed",
		DurationMS:   42,
	}
	require.NoError(t, store.Log(ctx, entry))

	got, err := store.GetByID(ctx, "entry-1")
	require.NoError(t, err)

	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "simple", got.Route)
	assert.Equal(t, "low_confidence", got.Branch)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)
	assert.Equal(t, "show findings owned by <PERSON_1>", got.MaskedQuery)
	assert.Equal(t, []string{"owner", "year"}, got.FilterFields)
	assert.Equal(t, []string{"record_store_unavailable"}, got.Notices)
	assert.Equal(t, "completed", got.FinalState)
	assert.Equal(t, int64(42), got.DurationMS)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestLogGeneratesID(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, Entry{RequestID: "r", SessionID: "s", Route: "complex"}))

	entries, err := store.Query(ctx, QueryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Empty(t, entries[0].FilterFields)
	assert.Empty(t, entries[0].Notices)
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seed := []Entry{
		{ID: "a", SessionID: "s1", Route: "simple", CreatedAt: base},
		{ID: "b", SessionID: "s1", Route: "complex", CreatedAt: base.Add(time.Minute)},
		{ID: "c", SessionID: "s2", Route: "simple", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range seed {
		e.RequestID = "req-" + e.ID
		require.NoError(t, store.Log(ctx, e))
	}

	bySession, err := store.Query(ctx, QueryFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, "b", bySession[0].ID, "newest first")

	byRoute, err := store.Query(ctx, QueryFilter{Route: "simple"})
	require.NoError(t, err)
	assert.Len(t, byRoute, 2)

	since := base.Add(30 * time.Second)
	recent, err := store.Query(ctx, QueryFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	until := base.Add(30 * time.Second)
	older, err := store.Query(ctx, QueryFilter{Until: &until})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "a", older[0].ID)

	paged, err := store.Query(ctx, QueryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].ID)
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Log(ctx, Entry{RequestID: "r", SessionID: "s", Route: "simple"}))
	}

	deleted, err := store.DeleteBefore(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	entries, err := store.Query(ctx, QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetByIDNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- HTTP handler tests ---

func setupRouter(t *testing.T) (chi.Router, *Store) {
	t.Helper()
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store)
	return r, store
}

func TestHTTPGetByID(t *testing.T) {
	r, store := setupRouter(t)

	require.NoError(t, store.Log(context.Background(), Entry{
		ID:        "http-1",
		RequestID: "req",
		SessionID: "sess",
		Route:     "hybrid",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/audit/http-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "http-1", got.ID)
	assert.Equal(t, "hybrid", got.Route)
}

func TestHTTPGetByIDNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPQueryWithFilter(t *testing.T) {
	r, store := setupRouter(t)
	ctx := context.Background()

	for _, sess := range []string{"alice", "bob", "alice"} {
		require.NoError(t, store.Log(ctx, Entry{RequestID: "r", SessionID: sess, Route: "simple"}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/audit?session_id=alice&limit=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var entries []Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	assert.Len(t, entries, 2)
}

func TestHTTPQueryRejectsMalformedParams(t *testing.T) {
	r, _ := setupRouter(t)

	for _, qs := range []string{"since=yesterday", "until=2025-13-01", "limit=0", "limit=ten", "offset=-1"} {
		t.Run(qs, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/audit?"+qs, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestParseFilterCapsLimit(t *testing.T) {
	f, err := parseFilter(map[string][]string{
		"limit": {"50000"},
		"since": {"2025-01-01T00:00:00Z"},
		"route": {"complex"},
	})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, f.Limit)
	assert.Equal(t, "complex", f.Route)
	require.NotNil(t, f.Since)
	assert.Equal(t, 2025, f.Since.Year())
	assert.Nil(t, f.Until)
}
