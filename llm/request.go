package llm

import "strings"

// CompletionRequest is a single prompt with optional system instruction.
type CompletionRequest struct {
	Prompt      string
	System      string
	MaxTokens   uint32
	Temperature *float32
	Stop        []string
}

// ChatRequest is a message sequence with optional tools and response format.
type ChatRequest struct {
	Messages    []ChatMessage
	Tools       []ToolDefinition
	MaxTokens   uint32
	Temperature *float32
	Stop        []string
	Format      *ResponseFormat
}

// EmbeddingRequest asks for one vector per input string.
type EmbeddingRequest struct {
	Input []string
	// Dimensions requests a reduced vector size where the model allows it. Zero means model default.
	Dimensions int
}

// HasImages reports whether any message carries image content.
func (r *ChatRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// CompletionResponse is the normalized result of a completion.
type CompletionResponse struct {
	Text         string
	Usage        *TokenUsage
	FinishReason string
}

// ChatResponse is the normalized result of a chat call. Message may carry
// tool calls and images alongside text.
type ChatResponse struct {
	Message      ChatMessage
	Usage        *TokenUsage
	FinishReason string
}

// Text returns the assistant text.
func (r *ChatResponse) Text() string {
	return r.Message.Content
}

// EmbeddingResponse holds one vector per input, in input order.
type EmbeddingResponse struct {
	Embeddings [][]float32
	Usage      *TokenUsage
}

// chatFromCompletion maps a completion onto a one-turn chat.
func chatFromCompletion(req *CompletionRequest) *ChatRequest {
	var msgs []ChatMessage
	if req.System != "" {
		msgs = append(msgs, SystemMessage(req.System))
	}
	msgs = append(msgs, UserMessage(req.Prompt))
	return &ChatRequest{
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
}

func completionFromChat(resp *ChatResponse) *CompletionResponse {
	return &CompletionResponse{
		Text:         resp.Message.Content,
		Usage:        resp.Usage,
		FinishReason: resp.FinishReason,
	}
}

// systemPrompt joins every system message; providers that take the system
// instruction out of band receive it this way.
func systemPrompt(messages []ChatMessage) string {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
