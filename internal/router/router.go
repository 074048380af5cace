// Package router runs one query through masking, classification and filter
// extraction, then executes the chosen path against the record store and
// the model, and restores every masked value in the answer.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/audit"
	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/masking"
	"github.com/ziadkadry99/auditq/internal/metrics"
	"github.com/ziadkadry99/auditq/internal/pseudonym"
	"github.com/ziadkadry99/auditq/internal/retry"
)

// RecordStore is the read side of the findings store.
type RecordStore interface {
	Query(ctx context.Context, set filters.Set, limit int) ([]findings.Finding, error)
	Recent(ctx context.Context, limit int) ([]findings.Finding, error)
	Count(ctx context.Context, set filters.Set) (int, error)
	Breakdown(ctx context.Context, field string, set filters.Set) ([]findings.Bucket, error)
}

// Extractor produces validated filters for a masked query.
type Extractor interface {
	Extract(ctx context.Context, maskedQuery string, cls classifier.Result) extractor.Result
}

// Pseudonymizer hides domain entities from the model and restores them.
type Pseudonymizer interface {
	Pseudonymize(ctx context.Context, payload any, sessionID string) (any, []pseudonym.MappingRef, error)
	Depseudonymize(ctx context.Context, text string, refs []pseudonym.MappingRef) string
}

// AuditLog records one entry per routed query.
type AuditLog interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// Options tunes limits and the record store retry policy.
type Options struct {
	// ListingLimit caps the records in a listing.
	ListingLimit int
	// ContextLimit caps the records sent to the model.
	ContextLimit int
	// StoreRetry bounds every record store call.
	StoreRetry retry.Policy
	// BreakdownFields are aggregated for the model on analytical routes.
	BreakdownFields []string
	// Model overrides the provider's default model for narratives.
	Model string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		ListingLimit: 100,
		ContextLimit: 40,
		StoreRetry: retry.Policy{
			Attempts:  2,
			BaseDelay: 200 * time.Millisecond,
			Timeout:   5 * time.Second,
		},
		BreakdownFields: []string{"severity", "status", "category", "year"},
	}
}

// Deps are the collaborators a Router needs. LLM and Audit may be nil.
type Deps struct {
	Masker     *masking.Masker
	Classifier *classifier.Classifier
	Extractor  Extractor
	Store      RecordStore
	Pseudonyms Pseudonymizer
	LLM        llm.Provider
	Audit      AuditLog
	Logger     *zap.Logger
}

// Router is safe for concurrent use; requests share no in-memory state.
type Router struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and builds a Router.
func New(deps Deps, opts Options) (*Router, error) {
	switch {
	case deps.Masker == nil:
		return nil, errors.New("router: masker is required")
	case deps.Classifier == nil:
		return nil, errors.New("router: classifier is required")
	case deps.Extractor == nil:
		return nil, errors.New("router: extractor is required")
	case deps.Store == nil:
		return nil, errors.New("router: record store is required")
	case deps.Pseudonyms == nil:
		return nil, errors.New("router: pseudonymizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ListingLimit <= 0 {
		opts.ListingLimit = defaults.ListingLimit
	}
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = defaults.ContextLimit
	}
	if opts.StoreRetry.Attempts <= 0 {
		opts.StoreRetry = defaults.StoreRetry
	}
	if opts.BreakdownFields == nil {
		opts.BreakdownFields = defaults.BreakdownFields
	}
	return &Router{deps: deps, opts: opts, logger: deps.Logger.Named("router")}, nil
}

// Classify masks and classifies a query and runs rule-only extraction. It
// makes no network calls.
func (r *Router) Classify(query string) (string, classifier.Result, []extractor.Warning) {
	masked, _ := r.deps.Masker.Mask(query)
	cls := r.deps.Classifier.Classify(masked)
	set, warnings := rulesOnly(r.deps.Extractor, masked)
	cls.Filters = set
	return masked, cls, warnings
}

func rulesOnly(e Extractor, masked string) (filters.Set, []extractor.Warning) {
	type ruleExtractor interface {
		Rules(query string) (filters.Set, []extractor.Warning)
	}
	if re, ok := e.(ruleExtractor); ok {
		return re.Rules(masked)
	}
	return filters.Set{}, nil
}

// Handle routes one query. The returned error is non-nil only for an empty
// query or when ctx ends before the answer is assembled; store and model
// outages produce a partial Result with notices instead.
func (r *Router) Handle(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{RequestID: req.RequestID, SessionID: req.SessionID, Records: []findings.Finding{}}
	if res.RequestID == "" {
		res.RequestID = uuid.NewString()
	}
	if res.SessionID == "" {
		// Without a session, pseudonyms live for this request only.
		res.SessionID = "req-" + res.RequestID
	}
	res.transition(StateReceived)

	if strings.TrimSpace(req.Query) == "" {
		res.transition(StateFailed)
		return res, ErrEmptyQuery
	}

	logger := r.logger.With(zap.String("request_id", res.RequestID), zap.String("session_id", res.SessionID))

	stage := time.Now()
	masked, tokens := r.deps.Masker.Mask(req.Query)
	res.Timing.MaskMS = r.observe("mask", stage)
	res.transition(StateMasked)

	finish := func(err error) (*Result, error) {
		if err != nil {
			res.transition(StateFailed)
		}
		res.Timing.TotalMS = ms(time.Since(start))
		r.record(ctx, res, masked)
		if err != nil {
			logger.Warn("query failed", zap.String("state", string(res.States[len(res.States)-2])), zap.Error(err))
			return res, err
		}
		logger.Info("query completed",
			zap.String("route", string(res.RouteType)),
			zap.Float64("confidence", res.Decision.Confidence),
			zap.Strings("filters", res.Filters.Fields()),
			zap.Strings("notices", res.NoticeCodes()),
			zap.Float64("total_ms", res.Timing.TotalMS),
		)
		return res, nil
	}

	stage = time.Now()
	cls := r.deps.Classifier.Classify(masked)
	res.Timing.ClassifyMS = r.observe("classify", stage)
	if cls.Ambiguous {
		logger.Debug("defaulting to complex route", zap.Error(ErrClassificationAmbiguous), zap.String("branch", string(cls.Branch)))
	}

	stage = time.Now()
	ext := r.deps.Extractor.Extract(ctx, masked, cls)
	res.Timing.ExtractMS = r.observe("extract", stage)
	res.Usage.Add(ext.Usage)
	for _, w := range ext.Warnings {
		metrics.ExtractionWarning(w.Field)
		logger.Debug("filter value dropped", zap.Error(w))
	}
	cls.Filters = ext.Filters
	res.Classification = cls
	res.Filters = ext.Filters
	res.Warnings = ext.Warnings
	res.transition(StateClassified)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	res.Decision = decide(cls)
	res.RouteType = res.Decision.Route
	res.transition(StateRouted)

	stage = time.Now()
	switch res.RouteType {
	case classifier.Simple:
		r.runListing(ctx, res, logger)
	case classifier.Hybrid:
		r.runListing(ctx, res, logger)
		r.runAnalysis(ctx, res, masked, res.Records, logger)
	default:
		r.runAnalysis(ctx, res, masked, nil, logger)
	}
	res.Timing.ExecuteMS = r.observe("execute", stage)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	res.transition(StateExecuted)

	stage = time.Now()
	res.Listing = r.deps.Masker.Unmask(res.Listing, tokens)
	res.Narrative = r.deps.Masker.Unmask(res.Narrative, tokens)
	res.Timing.UnmaskMS = r.observe("unmask", stage)
	res.transition(StateUnmasked)

	res.transition(StateCompleted)
	return finish(nil)
}

// runListing fills Records, Total and Listing from the record store.
func (r *Router) runListing(ctx context.Context, res *Result, logger *zap.Logger) {
	records, err := retry.DoValue(ctx, r.opts.StoreRetry, func(ctx context.Context) ([]findings.Finding, error) {
		return r.deps.Store.Query(ctx, res.Filters, r.opts.ListingLimit)
	})
	if err != nil {
		r.storeUnavailable(ctx, res, logger, err)
		res.Records = []findings.Finding{}
		res.Listing = findings.FormatListing(nil, 0)
		return
	}

	total := len(records)
	if total == r.opts.ListingLimit {
		n, err := retry.DoValue(ctx, r.opts.StoreRetry, func(ctx context.Context) (int, error) {
			return r.deps.Store.Count(ctx, res.Filters)
		})
		if err != nil {
			logger.Warn("counting findings failed", zap.Error(err))
		} else {
			total = n
		}
	}

	res.Records = records
	res.Total = total
	res.Listing = findings.FormatListing(records, total)
}

func (r *Router) storeUnavailable(ctx context.Context, res *Result, logger *zap.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	logger.Warn("record store unavailable", zap.Error(fmt.Errorf("%w: %w", ErrRecordStoreUnavailable, err)))
	if res.notify(NoticeRecordStoreUnavailable) {
		metrics.Degraded(NoticeRecordStoreUnavailable)
	}
}

func (r *Router) analysisUnavailable(ctx context.Context, res *Result, logger *zap.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	logger.Warn("analysis unavailable", zap.Error(err))
	if res.notify(NoticeAnalysisUnavailable) {
		metrics.Degraded(NoticeAnalysisUnavailable)
	}
}

func (r *Router) observe(stage string, since time.Time) float64 {
	d := time.Since(since)
	metrics.ObserveStage(stage, d)
	return ms(d)
}

// record writes the audit entry and metrics. Only the masked query is kept.
func (r *Router) record(ctx context.Context, res *Result, masked string) {
	route := string(res.RouteType)
	if route == "" {
		route = "none"
	}
	metrics.ObserveQuery(route, string(res.State), res.Decision.Confidence)

	if r.deps.Audit == nil {
		return
	}
	entry := audit.Entry{
		RequestID:    res.RequestID,
		SessionID:    res.SessionID,
		Route:        route,
		Branch:       string(res.Decision.Branch),
		Confidence:   res.Decision.Confidence,
		MaskedQuery:  masked,
		FilterFields: res.Filters.Fields(),
		Notices:      res.NoticeCodes(),
		FinalState:   string(res.State),
		DurationMS:   int64(res.Timing.TotalMS),
	}
	if err := r.deps.Audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn("writing route audit entry", zap.String("request_id", res.RequestID), zap.Error(err))
	}
}
