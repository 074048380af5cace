package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// RegisterRoutes mounts the route audit trail under /api/audit.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", listEntries(store))
		r.Get("/{id}", getEntry(store))
	})
}

// parseFilter reads session_id, request_id, route, since, until (RFC3339),
// limit and offset. Malformed values are rejected rather than ignored.
func parseFilter(q url.Values) (QueryFilter, error) {
	f := QueryFilter{
		SessionID: q.Get("session_id"),
		RequestID: q.Get("request_id"),
		Route:     q.Get("route"),
		Limit:     defaultPageSize,
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC3339 timestamp", p.name)
		}
		*p.dst = &t
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func listEntries(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "querying audit trail failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func getEntry(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "audit entry not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "loading audit entry failed")
		default:
			writeJSON(w, http.StatusOK, entry)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
