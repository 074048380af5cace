package llm

import (
	"context"

	"github.com/ziadkadry99/auditq/internal/retry"
)

// RetryingProvider bounds each completion with a timeout and retries
// failures with exponential backoff.
type RetryingProvider struct {
	provider Provider
	policy   retry.Policy
}

// NewRetryingProvider wraps provider with the given retry policy.
func NewRetryingProvider(provider Provider, policy retry.Policy) Provider {
	return &RetryingProvider{provider: provider, policy: policy}
}

func (r *RetryingProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return retry.DoValue(ctx, r.policy, func(ctx context.Context) (*CompletionResponse, error) {
		return r.provider.Complete(ctx, req)
	})
}
