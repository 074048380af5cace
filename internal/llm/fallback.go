package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Chain tries each provider in order and returns the first successful
// response. The response's Provider field names the one that answered.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a fallback chain. Nil providers are skipped.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name joins the names of the chained providers.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// Len reports how many providers are chained.
func (c *Chain) Len() int { return len(c.providers) }

func (c *Chain) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrUnavailable)
	}

	var errs []error
	for i, p := range c.providers {
		attempt := req
		if i > 0 {
			// Model names are provider specific; fallbacks use their own.
			attempt.Model = ""
		}
		resp, err := p.Complete(ctx, attempt)
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			fillUsage(resp, attempt)
			return resp, nil
		}
		c.logger.Warn("llm provider failed", zap.String("provider", p.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// fillUsage estimates token counts for providers that do not report them.
func fillUsage(resp *CompletionResponse, req CompletionRequest) {
	if resp.InputTokens == 0 {
		for _, m := range req.Messages {
			resp.InputTokens += EstimateTokens(m.Content)
		}
	}
	if resp.OutputTokens == 0 {
		resp.OutputTokens = EstimateTokens(resp.Content)
		for _, tc := range resp.ToolCalls {
			resp.OutputTokens += EstimateTokens(string(tc.Arguments))
		}
	}
}
