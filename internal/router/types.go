package router

import (
	"time"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/llm"
)

// State is a step of the per-request state machine.
type State string

const (
	StateReceived   State = "received"
	StateMasked     State = "masked"
	StateClassified State = "classified"
	StateRouted     State = "routed"
	StateExecuted   State = "executed"
	StateUnmasked   State = "unmasked"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Request is one user query.
type Request struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	// RequestID is generated when empty.
	RequestID string `json:"request_id,omitempty"`
}

// Decision is the chosen path and the evidence behind it.
type Decision struct {
	Route      classifier.RouteType `json:"route"`
	Branch     classifier.Branch    `json:"branch"`
	Confidence float64              `json:"confidence"`
	Scores     classifier.Scores    `json:"scores"`
	Ambiguous  bool                 `json:"ambiguous"`
}

func decide(cls classifier.Result) Decision {
	return Decision{
		Route:      cls.RouteType,
		Branch:     cls.Branch,
		Confidence: cls.Confidence,
		Scores:     cls.Scores,
		Ambiguous:  cls.Ambiguous,
	}
}

// Timing holds per-stage wall time in milliseconds.
type Timing struct {
	MaskMS     float64 `json:"mask_ms"`
	ClassifyMS float64 `json:"classify_ms"`
	ExtractMS  float64 `json:"extract_ms"`
	ExecuteMS  float64 `json:"execute_ms"`
	UnmaskMS   float64 `json:"unmask_ms"`
	TotalMS    float64 `json:"total_ms"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Result is everything the caller gets back for one query. Listing and
// Narrative are unmasked.
type Result struct {
	RequestID      string               `json:"request_id"`
	SessionID      string               `json:"session_id"`
	RouteType      classifier.RouteType `json:"route_type"`
	Decision       Decision             `json:"decision"`
	Classification classifier.Result    `json:"classification"`
	Filters        filters.Set          `json:"filters"`
	Warnings       []extractor.Warning  `json:"warnings,omitempty"`
	Records        []findings.Finding   `json:"records"`
	Total          int                  `json:"total"`
	Listing        string               `json:"listing,omitempty"`
	Narrative      string               `json:"narrative,omitempty"`
	Notices        []Notice             `json:"notices,omitempty"`
	Provider       string               `json:"provider,omitempty"`
	Usage          llm.Usage            `json:"usage"`
	State          State                `json:"state"`
	States         []State              `json:"states"`
	Timing         Timing               `json:"timing"`
}

func (r *Result) transition(s State) {
	r.State = s
	r.States = append(r.States, s)
}

func (r *Result) notify(code string) bool {
	for _, n := range r.Notices {
		if n.Code == code {
			return false
		}
	}
	r.Notices = append(r.Notices, newNotice(code))
	return true
}

// NoticeCodes lists the notice codes in order.
func (r *Result) NoticeCodes() []string {
	out := make([]string, len(r.Notices))
	for i, n := range r.Notices {
		out[i] = n.Code
	}
	return out
}
