package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of model-visible conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest describes one completion call.
type LLMRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float32
}

// LLMResponse carries the completion text.
type LLMResponse struct {
	Text       string
	StopReason string
}

// LLMClient is the black-box completion service. Responses may contain
// embedded tool-call markup, which the pipeline parses out.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
