package llm

import "encoding/json"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// Tool is a callable the model may invoke. Parameters is a JSON Schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a structured invocation returned by the model. Arguments is
// the raw JSON object the model produced and may be malformed.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// CompletionRequest contains the parameters for an LLM completion request.
// When Tools is set and ForceTool names one of them, providers that support
// it require the model to call that tool.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	Tools       []Tool
	ForceTool   string
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
	FinishReason string
}
