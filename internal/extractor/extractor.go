// Package extractor turns a masked query into a validated filter set by
// combining rule matching over the schema registry with an optional
// function-calling request to the model.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/schema"
)

// ErrValidation marks a candidate value that was dropped.
var ErrValidation = errors.New("extraction validation failed")

// Source says which strategy proposed a value.
type Source string

const (
	SourceRules Source = "rules"
	SourceModel Source = "model"
)

// Warning records a dropped candidate. It is informational; extraction
// continues without the value.
type Warning struct {
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
	Source Source `json:"source"`
}

func (w Warning) Error() string {
	if w.Value == "" {
		return fmt.Sprintf("%s: %s (%s)", w.Field, w.Reason, w.Source)
	}
	return fmt.Sprintf("%s=%q: %s (%s)", w.Field, w.Value, w.Reason, w.Source)
}

func (w Warning) Unwrap() error { return ErrValidation }

// Result is the outcome of one extraction.
type Result struct {
	Filters  filters.Set `json:"filters"`
	Warnings []Warning   `json:"warnings,omitempty"`
	// ModelUsed is true when the model returned usable arguments.
	ModelUsed bool `json:"model_used"`
	// Usage is the model response, if one was received.
	Usage *llm.CompletionResponse `json:"-"`
}

// Extractor is safe for concurrent use.
type Extractor struct {
	registry *schema.Registry
	provider llm.Provider
	logger   *zap.Logger
	matchers []fieldMatcher
}

// New builds an extractor. A nil provider restricts it to rule matching.
func New(registry *schema.Registry, provider llm.Provider, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	matchers, err := buildMatchers(registry)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		registry: registry,
		provider: provider,
		logger:   logger.Named("extractor"),
		matchers: matchers,
	}, nil
}

// Extract runs rule matching and, when a provider is configured, the
// model-assisted pass. Model values win per field; rule values fill the
// rest. Extraction never fails: model errors degrade to rule-only results.
func (e *Extractor) Extract(ctx context.Context, maskedQuery string, cls classifier.Result) Result {
	ruleSet, warnings := e.Rules(maskedQuery)
	res := Result{Filters: ruleSet, Warnings: warnings}

	if e.provider == nil {
		res.Filters.Sort(e.registry.Index)
		return res
	}

	modelSet, modelWarnings, resp, err := e.Model(ctx, maskedQuery, cls)
	res.Usage = resp
	if err != nil {
		e.logger.Warn("model-assisted extraction unavailable, using rules only", zap.Error(err))
		res.Filters.Sort(e.registry.Index)
		return res
	}

	res.ModelUsed = true
	res.Warnings = append(res.Warnings, modelWarnings...)
	res.Filters = filters.Merge(ruleSet, modelSet)
	res.Filters.Sort(e.registry.Index)
	return res
}
