package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var filterTool = Tool{
	Name:        "apply_filters",
	Description: "apply filters",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"severity": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string", "enum": []string{"High", "Low"}},
			},
			"year": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"min": map[string]any{"type": "number"},
				},
			},
		},
	},
}

func TestAnthropicToolUse(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		io.WriteString(w, `{
			"model": "claude-test",
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 7},
			"content": [
				{"type": "text", "text": "calling"},
				{"type": "tool_use", "name": "apply_filters", "input": {"severity": ["High"]}}
			]
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test")
	p.baseURL = srv.URL

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "high findings"},
		},
		Tools:     []Tool{filterTool},
		ForceTool: "apply_filters",
	})
	require.NoError(t, err)

	assert.Equal(t, "be brief", got["system"])
	assert.Equal(t, map[string]any{"type": "tool", "name": "apply_filters"}, got["tool_choice"])
	require.Len(t, got["tools"], 1)

	assert.Equal(t, "calling", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 12, resp.InputTokens)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "apply_filters", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"severity":["High"]}`, string(resp.ToolCalls[0].Arguments))
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"type": "rate_limit_error", "message": "slow down"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", "m")
	p.baseURL = srv.URL
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestOllamaToolCalls(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{
			"model": "llama3.1",
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 9,
			"eval_count": 4,
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "apply_filters", "arguments": {"year": {"min": 2022}}}}
			]}
		}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3.1")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "since 2022"}},
		Tools:    []Tool{filterTool},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Empty(t, got.Format, "json format is not combined with tools")
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)

	require.Len(t, resp.ToolCalls, 1)
	assert.JSONEq(t, `{"year":{"min":2022}}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, 9, resp.InputTokens)
}

func TestOpenAIToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "c1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": "", "tool_calls": [
					{"id": "t1", "type": "function", "function": {"name": "apply_filters", "arguments": "{\"severity\":[\"Low\"]}"}}
				]}
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("openai", "k", srv.URL, "gpt-test")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: "low"}},
		Tools:     []Tool{filterTool},
		ForceTool: "apply_filters",
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.JSONEq(t, `{"severity":["Low"]}`, string(resp.ToolCalls[0].Arguments))
}

func TestOpenAIBuildRequest(t *testing.T) {
	p := NewOpenAIProvider("k", "gpt-4o")
	req := p.buildRequest(CompletionRequest{JSONMode: true, Temperature: 0})
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 4096, req.MaxTokens)
	require.NotNil(t, req.ResponseFormat)

	withTools := p.buildRequest(CompletionRequest{JSONMode: true, Tools: []Tool{filterTool}})
	assert.Nil(t, withTools.ResponseFormat)
	require.Len(t, withTools.Tools, 1)
	assert.Equal(t, "apply_filters", withTools.Tools[0].Function.Name)
}

func TestMinimaxClampsTemperature(t *testing.T) {
	p := NewMinimaxProvider("k", "MiniMax-M2.5")
	assert.Equal(t, "minimax", p.Name())
	assert.InDelta(t, 0.01, p.buildRequest(CompletionRequest{Temperature: 0}).Temperature, 1e-6)
	assert.InDelta(t, 1.0, p.buildRequest(CompletionRequest{Temperature: 1.7}).Temperature, 1e-6)
	assert.InDelta(t, 0.3, p.buildRequest(CompletionRequest{Temperature: 0.3}).Temperature, 1e-6)
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(filterTool.Parameters)
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)

	sev := s.Properties["severity"]
	require.NotNil(t, sev)
	assert.Equal(t, genai.TypeArray, sev.Type)
	require.NotNil(t, sev.Items)
	assert.Equal(t, []string{"High", "Low"}, sev.Items.Enum)

	year := s.Properties["year"]
	require.NotNil(t, year)
	assert.Equal(t, genai.TypeNumber, year.Properties["min"].Type)

	assert.Nil(t, toGenaiSchema(nil))
}
