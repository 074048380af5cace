// Package classifier decides whether a masked query wants a direct lookup,
// an analysis, or both, from weighted lexical rule sets.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/rules"
)

// RouteType is the execution path a query takes.
type RouteType string

const (
	Simple  RouteType = "simple"
	Complex RouteType = "complex"
	Hybrid  RouteType = "hybrid"
)

// Branch identifies which decision rule produced a route.
type Branch string

const (
	BranchHybridScore   Branch = "hybrid_score"
	BranchMixedCues     Branch = "mixed_cues"
	BranchAnalysis      Branch = "analysis_dominant"
	BranchSimple        Branch = "simple_cues"
	BranchDefault       Branch = "no_cues"
	BranchLowConfidence Branch = "low_confidence"
)

// Scores are the per rule-set scores in [0,1].
type Scores struct {
	Simple  float64 `json:"simple"`
	Complex float64 `json:"complex"`
	Hybrid  float64 `json:"hybrid"`
}

// Result is the classification of one query. Filters is attached by the
// caller once extraction has run.
type Result struct {
	RouteType  RouteType   `json:"route_type"`
	Confidence float64     `json:"confidence"`
	Scores     Scores      `json:"scores"`
	Branch     Branch      `json:"branch"`
	Ambiguous  bool        `json:"ambiguous"`
	Matched    []string    `json:"matched_rules,omitempty"`
	Filters    filters.Set `json:"filters"`
}

type compiledRule struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

type ruleSet struct {
	name  string
	rules []compiledRule
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	cfg      rules.Classifier
	simple   ruleSet
	analysis ruleSet
	hybrid   ruleSet
}

// New compiles the classifier table. Patterns match case-insensitively.
func New(cfg rules.Classifier) (*Classifier, error) {
	c := &Classifier{cfg: cfg}
	var err error
	if c.simple, err = compile("simple", cfg.Simple); err != nil {
		return nil, err
	}
	if c.analysis, err = compile("analysis", cfg.Analysis); err != nil {
		return nil, err
	}
	if c.hybrid, err = compile("hybrid", cfg.Hybrid); err != nil {
		return nil, err
	}
	if c.cfg.Saturation <= 0 {
		return nil, fmt.Errorf("classifier saturation must be positive")
	}
	return c, nil
}

func compile(name string, list []rules.PatternRule) (ruleSet, error) {
	rs := ruleSet{name: name}
	for _, r := range list {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return rs, fmt.Errorf("%s rule %q: %w", name, r.Name, err)
		}
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		rs.rules = append(rs.rules, compiledRule{name: r.Name, re: re, weight: w})
	}
	return rs, nil
}

// Classify scores the query against each rule set and applies the decision
// order. It is pure: identical input always yields an identical Result.
func (c *Classifier) Classify(maskedQuery string) Result {
	q := strings.TrimSpace(maskedQuery)

	simple, simpleHits := c.score(c.simple, q)
	analysis, analysisHits := c.score(c.analysis, q)
	hybrid, hybridHits := c.score(c.hybrid, q)

	res := Result{
		Scores:  Scores{Simple: simple, Complex: analysis, Hybrid: hybrid},
		Matched: append(append(simpleHits, analysisHits...), hybridHits...),
	}

	var base, bonus float64
	switch {
	case hybrid > 0.3 && hybrid >= 0.5*simple:
		res.RouteType, res.Branch = Hybrid, BranchHybridScore
		base, bonus = hybrid, c.cfg.Bonus.Hybrid
	case simple > 0.2 && analysis > 0.2:
		res.RouteType, res.Branch = Hybrid, BranchMixedCues
		base, bonus = (simple+analysis)/2, c.cfg.Bonus.Hybrid
	case analysis > simple:
		res.RouteType, res.Branch = Complex, BranchAnalysis
		base, bonus = analysis, c.cfg.Bonus.Complex
	case simple > 0:
		res.RouteType, res.Branch = Simple, BranchSimple
		base, bonus = simple, c.cfg.Bonus.Simple
	default:
		res.RouteType, res.Branch = Complex, BranchDefault
		base, bonus = 0.5, 0
		res.Ambiguous = true
	}

	res.Confidence = clamp(base + bonus)
	if res.Confidence < c.cfg.ConfidenceFloor {
		res.Ambiguous = true
		if res.RouteType != Complex {
			res.RouteType = Complex
			res.Branch = BranchLowConfidence
		}
	}
	return res
}

// score combines a count term (matched weight over saturation, capped at 1)
// with a coverage term (mean share of the query each matched rule consumes).
func (c *Classifier) score(rs ruleSet, q string) (float64, []string) {
	if q == "" {
		return 0, nil
	}
	total := float64(len(q))

	var (
		weight   float64
		coverage float64
		hits     []string
	)
	for _, r := range rs.rules {
		locs := r.re.FindAllStringIndex(q, -1)
		if len(locs) == 0 {
			continue
		}
		consumed := 0
		for _, loc := range locs {
			consumed += loc[1] - loc[0]
		}
		weight += r.weight
		coverage += minf(1, float64(consumed)/total)
		hits = append(hits, rs.name+":"+r.name)
	}
	if len(hits) == 0 {
		return 0, nil
	}

	count := minf(1, weight/c.cfg.Saturation)
	cov := coverage / float64(len(hits))
	return clamp(c.cfg.CountWeight*count + c.cfg.CoverageWeight*cov), hits
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
