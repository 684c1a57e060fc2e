// Anthropic backend implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - System prompt carried out of band

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/model"
)

// anthropicDefaultMaxTokens applies when the request leaves max tokens unset;
// the Messages API requires the field.
const anthropicDefaultMaxTokens = 4096

// AnthropicBackend implements Backend for Anthropic Claude.
type AnthropicBackend struct {
	client   anthropic.Client
	registry *capability.Registry
}

// NewAnthropicBackend creates a new Anthropic backend. SDK retries are
// disabled; retrying is the caller's decision.
func NewAnthropicBackend(cfg BackendConfig) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &AnthropicBackend{
		client:   anthropic.NewClient(opts...),
		registry: cfg.registry(),
	}
}

// Name returns the backend name.
func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) SupportsChat() bool       { return true }
func (b *AnthropicBackend) SupportsCompletion() bool { return true }
func (b *AnthropicBackend) SupportsEmbeddings() bool { return false }

// Chat sends a Messages API request.
func (b *AnthropicBackend) Chat(ctx context.Context, modelID string, req *ChatRequest) (*ChatResponse, error) {
	if err := gateChat(b.registry, b, modelID, req); err != nil {
		return nil, err
	}
	return b.send(ctx, modelID, req, "chat")
}

// Complete maps the prompt onto a one-turn chat.
func (b *AnthropicBackend) Complete(ctx context.Context, modelID string, req *CompletionRequest) (*CompletionResponse, error) {
	if err := gate(b.registry, b, modelID, model.OpCompletion); err != nil {
		return nil, err
	}
	resp, err := b.send(ctx, modelID, chatFromCompletion(req), "completion")
	if err != nil {
		return nil, err
	}
	return completionFromChat(resp), nil
}

// Embed is not offered by Anthropic.
func (b *AnthropicBackend) Embed(_ context.Context, modelID string, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return nil, gateEmbed(b.registry, b, modelID, req)
}

func (b *AnthropicBackend) send(ctx context.Context, modelID string, req *ChatRequest, op string) (*ChatResponse, error) {
	params, err := toAnthropicParams(modelID, req)
	if err != nil {
		return nil, translationError(err, b.Name(), modelID)
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, transportError(ctx, err, b.Name(), modelID, op)
	}
	return fromAnthropicMessage(message), nil
}

// toAnthropicParams is pure: the same request always yields the same payload.
func toAnthropicParams(modelID string, req *ChatRequest) (anthropic.MessageNewParams, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	tools, err := toAnthropicTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(modelID),
		MaxTokens:     maxTokens,
		Messages:      msgs,
		Tools:         tools,
		StopSequences: req.Stop,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params, nil
}

func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// carried in params.System
		case RoleUser:
			blocks := []anthropic.ContentBlockParamUnion{}
			for j, img := range msg.Images {
				block, err := anthropicImage(img)
				if err != nil {
					return nil, fmt.Errorf("message %d image %d: %w", i, j, err)
				}
				blocks = append(blocks, block)
			}
			if msg.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			param := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, model.Errorf(model.KindTranslation, "tool call %q has malformed arguments", tc.Name)
					}
				}
				param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			out = append(out, param)
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			return nil, model.Errorf(model.KindTranslation, "message %d has unknown role %q", i, msg.Role)
		}
	}

	return out, nil
}

func anthropicImage(img ImageContent) (anthropic.ContentBlockParamUnion, error) {
	switch {
	case len(img.Data) > 0:
		if img.MediaType == "" {
			return anthropic.ContentBlockParamUnion{}, model.Errorf(model.KindTranslation, "inline image without media type")
		}
		return anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)), nil
	case img.URL != "":
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.URL}), nil
	default:
		return anthropic.ContentBlockParamUnion{}, model.Errorf(model.KindTranslation, "image has neither data nor url")
	}
}

func toAnthropicTools(tools []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		if err := validSchema(t); err != nil {
			return nil, err
		}

		// Extract properties and required from the full schema
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   requiredFields(t.Parameters),
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result, nil
}

// requiredFields accepts both []string and the []interface{} produced by JSON decoding.
func requiredFields(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func fromAnthropicMessage(message *anthropic.Message) *ChatResponse {
	msg := ChatMessage{Role: RoleAssistant}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content += variant.Text
		case anthropic.ToolUseBlock:
			// Get raw JSON input from the ToolUseBlock
			inputJSON, _ := json.Marshal(variant.Input)
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}

	return &ChatResponse{
		Message:      msg,
		FinishReason: string(message.StopReason),
		Usage: &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
}

// Verify AnthropicBackend implements Backend
var _ Backend = (*AnthropicBackend)(nil)
