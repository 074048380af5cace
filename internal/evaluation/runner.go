package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/masking"
	"github.com/ziadkadry99/auditq/internal/progress"
)

// Masker masks identifiers before classification.
type Masker interface {
	Mask(text string) (string, masking.TokenSet)
}

// Classifier routes a masked query.
type Classifier interface {
	Classify(maskedQuery string) classifier.Result
}

// Extractor derives filters from a masked query.
type Extractor interface {
	Rules(query string) (filters.Set, []extractor.Warning)
	Extract(ctx context.Context, maskedQuery string, cls classifier.Result) extractor.Result
}

// Options tunes a Runner.
type Options struct {
	// WithModel runs model-assisted extraction instead of rules only.
	WithModel bool
	Reporter  progress.Reporter
	Logger    *zap.Logger
}

// Runner evaluates cases sequentially.
type Runner struct {
	masker     Masker
	classifier Classifier
	extractor  Extractor
	opts       Options
}

// NewRunner builds a Runner.
func NewRunner(m Masker, c Classifier, e Extractor, opts Options) *Runner {
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{masker: m, classifier: c, extractor: e, opts: opts}
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case       Case                 `json:"case"`
	Masked     string               `json:"masked_query"`
	Route      classifier.RouteType `json:"route"`
	Confidence float64              `json:"confidence"`
	Filters    map[string]any       `json:"filters"`
	Warnings   []string             `json:"warnings,omitempty"`
	RouteOK    bool                 `json:"route_ok"`
	FiltersOK  bool                 `json:"filters_ok"`
	// FilterDiff is a cmp diff (-want +got) when FiltersOK is false.
	FilterDiff string `json:"filter_diff,omitempty"`
}

// Passed reports whether both route and filters matched.
func (r CaseResult) Passed() bool { return r.RouteOK && r.FiltersOK }

// Run evaluates every case. It stops early only when ctx ends.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	rep := &Report{Results: make([]CaseResult, 0, len(cases))}
	r.opts.Reporter.Start(len(cases))
	defer r.opts.Reporter.Finish()

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := r.runCase(ctx, c)
		if err != nil {
			return rep, fmt.Errorf("case %s: %w", c.Name, err)
		}
		rep.add(res)
		r.opts.Reporter.Update(i+1, c.Name)
		r.opts.Logger.Debug("evaluated case",
			zap.String("case", c.Name),
			zap.String("route", string(res.Route)),
			zap.Bool("passed", res.Passed()))
	}
	return rep, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) (CaseResult, error) {
	masked, _ := r.masker.Mask(c.Query)
	cls := r.classifier.Classify(masked)

	var (
		set      filters.Set
		warnings []extractor.Warning
	)
	if r.opts.WithModel {
		ext := r.extractor.Extract(ctx, masked, cls)
		set, warnings = ext.Filters, ext.Warnings
	} else {
		set, warnings = r.extractor.Rules(masked)
	}

	got, err := normalize(set)
	if err != nil {
		return CaseResult{}, err
	}

	res := CaseResult{
		Case:       c,
		Masked:     masked,
		Route:      cls.RouteType,
		Confidence: cls.Confidence,
		Filters:    got,
		RouteOK:    cls.RouteType == c.Route,
		FiltersOK:  true,
	}
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}

	if c.Filters != nil {
		want, err := normalize(c.Filters)
		if err != nil {
			return CaseResult{}, err
		}
		if diff := cmp.Diff(want, got); diff != "" {
			res.FiltersOK = false
			res.FilterDiff = diff
		}
	}
	return res, nil
}

// normalize round-trips v through JSON so YAML ints and filter values
// compare on equal terms.
func normalize(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding filters: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding filters: %w", err)
	}
	return out, nil
}

// Report aggregates case results.
type Report struct {
	Results      []CaseResult `json:"results"`
	Total        int          `json:"total"`
	Passed       int          `json:"passed"`
	RouteCorrect int          `json:"route_correct"`
}

func (rep *Report) add(r CaseResult) {
	rep.Results = append(rep.Results, r)
	rep.Total++
	if r.RouteOK {
		rep.RouteCorrect++
	}
	if r.Passed() {
		rep.Passed++
	}
}

// RouteAccuracy is the share of cases routed as labelled.
func (rep *Report) RouteAccuracy() float64 {
	if rep.Total == 0 {
		return 0
	}
	return float64(rep.RouteCorrect) / float64(rep.Total)
}

// Write prints a human-readable report.
func (rep *Report) Write(w io.Writer) {
	for _, r := range rep.Results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s  %s  route=%s (want %s, %.2f)\n", status, r.Case.Name, r.Route, r.Case.Route, r.Confidence)
		if !r.FiltersOK {
			fmt.Fprintf(w, "      filters (-want +got):\n%s", r.FilterDiff)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "      dropped %s\n", warn)
		}
	}
	fmt.Fprintf(w, "\n%d/%d passed, route accuracy %.1f%%\n", rep.Passed, rep.Total, rep.RouteAccuracy()*100)
}
