package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/metrics"
	"github.com/ziadkadry99/auditq/internal/retry"
)

const analysisSystemPrompt = `You are an audit analyst. Answer the question using only the findings data provided.

Rules:
- Base every statement on the data; say so when the data is insufficient.
- Tokens such as PERSON_1A2B, AMOUNT_..., IDENTIFIER_..., LOCATION_... and [EMAIL_1] stand for real values. Copy them exactly as written; never guess what they stand for.
- Point out patterns, concentrations and priorities where the data supports them.
- Keep the answer under 300 words. Use Markdown lists where helpful.`

// analysisContext is the data the model reasons over.
type analysisContext struct {
	Question   string                       `json:"question"`
	Filters    filters.Set                  `json:"filters"`
	Matched    int                          `json:"matched"`
	Breakdowns map[string][]findings.Bucket `json:"breakdowns,omitempty"`
	Records    []findings.Finding           `json:"records"`
	Subset     string                       `json:"subset"`
}

// gather collects the context subset plus count and breakdowns in
// parallel. seed, when non-empty, is used as the subset (hybrid route).
// Only a failure to obtain the subset is returned; count and breakdown
// failures just leave those parts out.
func (r *Router) gather(ctx context.Context, masked string, set filters.Set, seed []findings.Finding, logger *zap.Logger) (*analysisContext, error) {
	ac := &analysisContext{Question: masked, Filters: set, Matched: -1}
	buckets := make([][]findings.Bucket, len(r.opts.BreakdownFields))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if len(seed) > 0 {
			ac.Records, ac.Subset = truncate(seed, r.opts.ContextLimit), "listing"
			return nil
		}
		if set.Len() > 0 {
			records, err := retry.DoValue(gctx, r.opts.StoreRetry, func(ctx context.Context) ([]findings.Finding, error) {
				return r.deps.Store.Query(ctx, set, r.opts.ContextLimit)
			})
			if err != nil {
				return err
			}
			if len(records) > 0 {
				ac.Records, ac.Subset = records, "filtered"
				return nil
			}
		}
		records, err := retry.DoValue(gctx, r.opts.StoreRetry, func(ctx context.Context) ([]findings.Finding, error) {
			return r.deps.Store.Recent(ctx, r.opts.ContextLimit)
		})
		if err != nil {
			return err
		}
		ac.Records, ac.Subset = records, "recent"
		return nil
	})

	g.Go(func() error {
		n, err := retry.DoValue(gctx, r.opts.StoreRetry, func(ctx context.Context) (int, error) {
			return r.deps.Store.Count(ctx, set)
		})
		if err != nil {
			logger.Debug("count unavailable for analysis", zap.Error(err))
			return nil
		}
		ac.Matched = n
		return nil
	})

	for i, field := range r.opts.BreakdownFields {
		g.Go(func() error {
			b, err := retry.DoValue(gctx, r.opts.StoreRetry, func(ctx context.Context) ([]findings.Bucket, error) {
				return r.deps.Store.Breakdown(ctx, field, set)
			})
			if err != nil {
				logger.Debug("breakdown unavailable", zap.String("field", field), zap.Error(err))
				return nil
			}
			buckets[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, field := range r.opts.BreakdownFields {
		if buckets[i] == nil {
			continue
		}
		if ac.Breakdowns == nil {
			ac.Breakdowns = make(map[string][]findings.Bucket)
		}
		ac.Breakdowns[field] = buckets[i]
	}
	if ac.Matched < 0 {
		ac.Matched = len(ac.Records)
	}
	return ac, nil
}

// runAnalysis produces the narrative: gather context, pseudonymize it with
// the question, ask the model and restore the answer. Any failure leaves
// Narrative empty and adds a notice.
func (r *Router) runAnalysis(ctx context.Context, res *Result, masked string, seed []findings.Finding, logger *zap.Logger) {
	ac, err := r.gather(ctx, masked, res.Filters, seed, logger)
	if err != nil {
		r.storeUnavailable(ctx, res, logger, err)
		r.analysisUnavailable(ctx, res, logger, fmt.Errorf("no context for analysis: %w", err))
		return
	}
	if r.deps.LLM == nil {
		r.analysisUnavailable(ctx, res, logger, fmt.Errorf("%w: no provider configured", ErrLLMUnavailable))
		return
	}

	payload, refs, err := r.deps.Pseudonyms.Pseudonymize(ctx, ac, res.SessionID)
	if err != nil {
		// Sending the context unprotected is never an option.
		r.analysisUnavailable(ctx, res, logger, fmt.Errorf("pseudonymizing context: %w", err))
		return
	}

	prompt, err := buildAnalysisPrompt(payload)
	if err != nil {
		r.analysisUnavailable(ctx, res, logger, err)
		return
	}

	resp, err := r.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Model: r.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: analysisSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		metrics.LLMFailure(r.deps.LLM.Name())
		r.analysisUnavailable(ctx, res, logger, err)
		return
	}

	res.Usage.Add(resp)
	res.Provider = resp.Provider
	if res.Provider == "" {
		res.Provider = r.deps.LLM.Name()
	}
	res.Narrative = r.deps.Pseudonyms.Depseudonymize(ctx, strings.TrimSpace(resp.Content), refs)
}

// buildAnalysisPrompt renders the pseudonymized context. The question is
// pulled out of the payload so it reads as prose.
func buildAnalysisPrompt(payload any) (string, error) {
	tree, ok := payload.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected analysis payload %T", payload)
	}
	question, _ := tree["question"].(string)

	data := make(map[string]any, len(tree))
	for k, v := range tree {
		if k != "question" {
			data[k] = v
		}
	}
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding analysis context: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Question\n\n")
	b.WriteString(question)
	b.WriteString("\n\n## Findings data\n\n")
	b.WriteString("`matched` is the number of findings matching the filters; `records` is a sample of at most that many; `subset` says how the sample was chosen.\n\n")
	b.WriteString("```json\n")
	b.Write(body)
	b.WriteString("\n```\n")
	return b.String(), nil
}

func truncate(records []findings.Finding, n int) []findings.Finding {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}
