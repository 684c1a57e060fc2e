// Google Gemini backend implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/model"
	"google.golang.org/genai"
)

// GeminiBackend implements Backend for Google Gemini.
type GeminiBackend struct {
	client   *genai.Client
	registry *capability.Registry
	initErr  error // Stores client initialization error for deferred reporting
}

// NewGeminiBackend creates a new Gemini backend.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiBackend(cfg BackendConfig) *GeminiBackend {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	b := &GeminiBackend{registry: cfg.registry()}
	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		b.initErr = model.Wrap(model.KindConfiguration, err, "initialize Gemini client")
		return b
	}
	b.client = client
	return b
}

// Name returns the backend name.
func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) SupportsChat() bool       { return true }
func (b *GeminiBackend) SupportsCompletion() bool { return true }
func (b *GeminiBackend) SupportsEmbeddings() bool { return true }

func (b *GeminiBackend) ready(modelID string) error {
	if b.initErr != nil {
		if e, ok := model.AsError(b.initErr); ok {
			return e.WithBackend(b.Name(), modelID)
		}
		return b.initErr
	}
	if b.client == nil {
		return model.Errorf(model.KindConfiguration, "gemini client not initialized").WithBackend(b.Name(), modelID)
	}
	return nil
}

// Chat sends a GenerateContent request.
func (b *GeminiBackend) Chat(ctx context.Context, modelID string, req *ChatRequest) (*ChatResponse, error) {
	if err := gateChat(b.registry, b, modelID, req); err != nil {
		return nil, err
	}
	return b.generate(ctx, modelID, req, "chat")
}

// Complete maps the prompt onto a one-turn chat.
func (b *GeminiBackend) Complete(ctx context.Context, modelID string, req *CompletionRequest) (*CompletionResponse, error) {
	if err := gate(b.registry, b, modelID, model.OpCompletion); err != nil {
		return nil, err
	}
	resp, err := b.generate(ctx, modelID, chatFromCompletion(req), "completion")
	if err != nil {
		return nil, err
	}
	return completionFromChat(resp), nil
}

// Embed calls EmbedContent with one content per input.
func (b *GeminiBackend) Embed(ctx context.Context, modelID string, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := gateEmbed(b.registry, b, modelID, req); err != nil {
		return nil, err
	}
	if err := b.ready(modelID); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(req.Input))
	for i, text := range req.Input {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	var config *genai.EmbedContentConfig
	if req.Dimensions > 0 {
		config = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(req.Dimensions))}
	}

	resp, err := b.client.Models.EmbedContent(ctx, modelID, contents, config)
	if err != nil {
		return nil, transportError(ctx, err, b.Name(), modelID, "embedding")
	}
	if len(resp.Embeddings) != len(req.Input) {
		return nil, model.Errorf(model.KindTranslation, "expected %d embeddings, got %d", len(req.Input), len(resp.Embeddings)).
			WithBackend(b.Name(), modelID)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			vectors[i] = e.Values
		}
	}
	return &EmbeddingResponse{Embeddings: vectors}, nil
}

func (b *GeminiBackend) generate(ctx context.Context, modelID string, req *ChatRequest, op string) (*ChatResponse, error) {
	if err := b.ready(modelID); err != nil {
		return nil, err
	}

	contents, config, err := toGeminiRequest(req)
	if err != nil {
		return nil, translationError(err, b.Name(), modelID)
	}

	response, err := b.client.Models.GenerateContent(ctx, modelID, contents, config)
	if err != nil {
		return nil, transportError(ctx, err, b.Name(), modelID, op)
	}
	return fromGeminiResponse(response), nil
}

// toGeminiRequest is pure: the same request always yields the same payload.
func toGeminiRequest(req *ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, nil, err
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		StopSequences:   req.Stop,
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(*req.Temperature)
	}
	if system := systemPrompt(req.Messages); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		tools, err := toGeminiTools(req.Tools)
		if err != nil {
			return nil, nil, err
		}
		config.Tools = tools
	}
	if f := req.Format; f != nil && f.Type != ResponseFormatText {
		config.ResponseMIMEType = "application/json"
	}
	return contents, config, nil
}

func toGeminiContents(messages []ChatMessage) ([]*genai.Content, error) {
	var contents []*genai.Content

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// carried in config.SystemInstruction
		case RoleUser:
			content := &genai.Content{Role: genai.RoleUser}
			for j, img := range msg.Images {
				part, err := geminiImage(img)
				if err != nil {
					return nil, fmt.Errorf("message %d image %d: %w", i, j, err)
				}
				content.Parts = append(content.Parts, part)
			}
			if msg.Content != "" || len(content.Parts) == 0 {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			contents = append(contents, content)
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, model.Errorf(model.KindTranslation, "tool call %q has malformed arguments", tc.Name)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, content)
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser, // Gemini expects tool results as user
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolCallID,
						Response: result,
					},
				}},
			})
		default:
			return nil, model.Errorf(model.KindTranslation, "message %d has unknown role %q", i, msg.Role)
		}
	}

	return contents, nil
}

func geminiImage(img ImageContent) (*genai.Part, error) {
	switch {
	case len(img.Data) > 0:
		if img.MediaType == "" {
			return nil, model.Errorf(model.KindTranslation, "inline image without media type")
		}
		return genai.NewPartFromBytes(img.Data, img.MediaType), nil
	case img.URL != "":
		return genai.NewPartFromURI(img.URL, img.MediaType), nil
	default:
		return nil, model.Errorf(model.KindTranslation, "image has neither data nor url")
	}
}

func fromGeminiResponse(response *genai.GenerateContentResponse) *ChatResponse {
	msg := ChatMessage{Role: RoleAssistant}
	var finish string

	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		candidate := response.Candidates[0]
		finish = string(candidate.FinishReason)
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if part.InlineData != nil {
				msg.Images = append(msg.Images, ImageContent{
					MediaType: part.InlineData.MIMEType,
					Data:      part.InlineData.Data,
				})
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = part.FunctionCall.Name // Gemini may omit the call id
				}
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: argsJSON,
				})
			}
		}
	}

	out := &ChatResponse{Message: msg, FinishReason: finish}
	if response.UsageMetadata != nil {
		out.Usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}
	return out
}

func toGeminiTools(tools []ToolDefinition) ([]*genai.Tool, error) {
	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		if err := validSchema(t); err != nil {
			return nil, err
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}, nil
}

// toGeminiSchema recursively converts a JSON schema to Gemini format.
// Arrays always get an items schema since Gemini requires one.
func toGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if t, ok := params["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}
	schema.Required = requiredFields(params)

	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}

	if schema.Type == genai.TypeArray {
		if items, ok := params["items"].(map[string]interface{}); ok {
			schema.Items = toGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	return schema
}

// geminiType maps JSON schema type to Gemini type.
func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiBackend implements Backend
var _ Backend = (*GeminiBackend)(nil)
