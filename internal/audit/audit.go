// Package audit records one entry per routed query: the route taken, the
// classifier's confidence, which filter fields were applied and any notices.
// Only the masked query is stored.
package audit

import "time"

// Entry is a single route audit record.
type Entry struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	RequestID    string    `json:"request_id"`
	SessionID    string    `json:"session_id"`
	Route        string    `json:"route"`
	Branch       string    `json:"branch"`
	Confidence   float64   `json:"confidence"`
	MaskedQuery  string    `json:"masked_query"`
	FilterFields []string  `json:"filter_fields"`
	Notices      []string  `json:"notices"`
	FinalState   string    `json:"final_state"`
	DurationMS   int64     `json:"duration_ms"`
}
