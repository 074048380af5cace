// Package llmtest provides a scriptable llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/ziadkadry99/auditq/internal/llm"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []llm.CompletionRequest
	Response *llm.CompletionResponse
	Err      error
	ProvName string
	// Handler, when set, computes the response per call and takes
	// precedence over Response and Err.
	Handler func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// NewMockProvider returns a mock that answers every call with "mock response".
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &llm.CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	handler, resp, err := m.Handler, m.Response, m.Err
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	// Copy so callers mutating the response do not race.
	out := *resp
	return &out, nil
}

// CallCount reports how many completions were requested.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or the zero value.
func (m *MockProvider) LastCall() llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return llm.CompletionRequest{}
	}
	return m.Calls[len(m.Calls)-1]
}
