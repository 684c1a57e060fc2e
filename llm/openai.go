// OpenAI backend implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions and Embeddings APIs
// - Shared by every OpenAI-compatible endpoint (DeepSeek, Ollama)

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/model"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend implements Backend for OpenAI and OpenAI-compatible servers.
type OpenAIBackend struct {
	name       string
	client     *openai.Client
	registry   *capability.Registry
	embeddings bool
}

// NewOpenAIBackend creates a backend for api.openai.com, or cfg.BaseURL when set.
func NewOpenAIBackend(cfg BackendConfig) *OpenAIBackend {
	return newOpenAICompatible("openai", cfg, "", true)
}

func newOpenAICompatible(name string, cfg BackendConfig, defaultBaseURL string, embeddings bool) *OpenAIBackend {
	config := openai.DefaultConfig(cfg.APIKey)
	switch {
	case cfg.BaseURL != "":
		config.BaseURL = cfg.BaseURL
	case defaultBaseURL != "":
		config.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIBackend{
		name:       name,
		client:     openai.NewClientWithConfig(config),
		registry:   cfg.registry(),
		embeddings: embeddings,
	}
}

// Name returns the backend name.
func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) SupportsChat() bool       { return true }
func (b *OpenAIBackend) SupportsCompletion() bool { return true }
func (b *OpenAIBackend) SupportsEmbeddings() bool { return b.embeddings }

// Chat sends a chat completion request.
func (b *OpenAIBackend) Chat(ctx context.Context, modelID string, req *ChatRequest) (*ChatResponse, error) {
	if err := gateChat(b.registry, b, modelID, req); err != nil {
		return nil, err
	}

	wire, err := toOpenAIChatRequest(modelID, req)
	if err != nil {
		return nil, translationError(err, b.name, modelID)
	}

	resp, err := b.client.CreateChatCompletion(ctx, wire)
	if err != nil {
		return nil, transportError(ctx, err, b.name, modelID, "chat completion")
	}

	out, err := fromOpenAIChatResponse(resp)
	if err != nil {
		return nil, translationError(err, b.name, modelID)
	}
	return out, nil
}

// Complete maps the prompt onto a one-turn chat.
func (b *OpenAIBackend) Complete(ctx context.Context, modelID string, req *CompletionRequest) (*CompletionResponse, error) {
	if err := gate(b.registry, b, modelID, model.OpCompletion); err != nil {
		return nil, err
	}

	wire, err := toOpenAIChatRequest(modelID, chatFromCompletion(req))
	if err != nil {
		return nil, translationError(err, b.name, modelID)
	}

	resp, err := b.client.CreateChatCompletion(ctx, wire)
	if err != nil {
		return nil, transportError(ctx, err, b.name, modelID, "completion")
	}

	out, err := fromOpenAIChatResponse(resp)
	if err != nil {
		return nil, translationError(err, b.name, modelID)
	}
	return completionFromChat(out), nil
}

// Embed requests embeddings for every input string.
func (b *OpenAIBackend) Embed(ctx context.Context, modelID string, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := gateEmbed(b.registry, b, modelID, req); err != nil {
		return nil, err
	}

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      req.Input,
		Model:      openai.EmbeddingModel(modelID),
		Dimensions: req.Dimensions,
	})
	if err != nil {
		return nil, transportError(ctx, err, b.name, modelID, "embedding")
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	if len(data) != len(req.Input) {
		return nil, model.Errorf(model.KindTranslation, "expected %d embeddings, got %d", len(req.Input), len(data)).
			WithBackend(b.name, modelID)
	}

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return &EmbeddingResponse{
		Embeddings: vectors,
		Usage: &TokenUsage{
			PromptTokens: uint32(resp.Usage.PromptTokens),
			TotalTokens:  uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

// toOpenAIChatRequest is pure: the same request always yields the same payload.
func toOpenAIChatRequest(modelID string, req *ChatRequest) (openai.ChatCompletionRequest, error) {
	msgs, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	tools, err := toOpenAITools(req.Tools)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	wire := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: msgs,
		Stop:     req.Stop,
		Tools:    tools,
	}
	if reasoningModel(modelID) {
		// Reasoning models reject max_tokens and any temperature other than 1.
		wire.MaxCompletionTokens = int(req.MaxTokens)
	} else {
		wire.MaxTokens = int(req.MaxTokens)
		if req.Temperature != nil {
			wire.Temperature = *req.Temperature
		}
	}

	if f := req.Format; f != nil && f.Type != ResponseFormatText {
		wire.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(f.Type),
		}
		if f.Type == ResponseFormatJSONSchema {
			if f.JSONSchema == nil {
				return wire, model.Errorf(model.KindTranslation, "json_schema format without a schema")
			}
			wire.ResponseFormat.JSONSchema = &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        f.JSONSchema.Name,
				Description: f.JSONSchema.Description,
				Schema:      f.JSONSchema.Schema,
				Strict:      f.JSONSchema.Strict,
			}
		}
	}
	return wire, nil
}

func toOpenAIMessages(messages []ChatMessage) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			ToolCallID: msg.ToolCallID,
		}

		if len(msg.Images) > 0 {
			parts := []openai.ChatMessagePart{}
			if msg.Content != "" {
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
			}
			for j, img := range msg.Images {
				u, err := imageURL(img)
				if err != nil {
					return nil, fmt.Errorf("message %d image %d: %w", i, j, err)
				}
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: u},
				})
			}
			oaiMsg.MultiContent = parts
		} else {
			oaiMsg.Content = msg.Content
		}

		for _, tc := range msg.ToolCalls {
			if err := validArguments(tc); err != nil {
				return nil, err
			}
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		result[i] = oaiMsg
	}
	return result, nil
}

func toOpenAITools(tools []ToolDefinition) ([]openai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		if err := validSchema(t); err != nil {
			return nil, err
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result, nil
}

func fromOpenAIChatResponse(resp openai.ChatCompletionResponse) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, model.Errorf(model.KindTranslation, "response has no choices")
	}
	choice := resp.Choices[0]

	msg := ChatMessage{Role: RoleAssistant, Content: choice.Message.Content}
	for _, part := range choice.Message.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			msg.Content += part.Text
		}
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return &ChatResponse{
		Message:      msg,
		FinishReason: string(choice.FinishReason),
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

func reasoningModel(modelID string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

// imageURL renders an image as a URL, inlining bytes as a data URI.
func imageURL(img ImageContent) (string, error) {
	switch {
	case img.URL != "":
		return img.URL, nil
	case len(img.Data) > 0:
		mt := img.MediaType
		if mt == "" {
			return "", model.Errorf(model.KindTranslation, "inline image without media type")
		}
		return fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(img.Data)), nil
	default:
		return "", model.Errorf(model.KindTranslation, "image has neither data nor url")
	}
}

func validArguments(tc ToolCall) error {
	if len(tc.Arguments) > 0 && !json.Valid(tc.Arguments) {
		return model.Errorf(model.KindTranslation, "tool call %q has malformed arguments", tc.Name)
	}
	return nil
}

func validSchema(t ToolDefinition) error {
	if t.Name == "" {
		return model.Errorf(model.KindTranslation, "tool without a name")
	}
	if typ, ok := t.Parameters["type"]; ok && typ != "object" {
		return model.Errorf(model.KindTranslation, "tool %q parameters must be an object schema", t.Name)
	}
	return nil
}

// Verify OpenAIBackend implements Backend
var _ Backend = (*OpenAIBackend)(nil)
