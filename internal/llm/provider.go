package llm

import (
	"context"
	"errors"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// ErrUnavailable is returned when no configured provider produced a response.
var ErrUnavailable = errors.New("llm service unavailable")

func pickModel(req CompletionRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

func pickMaxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 4096
}
