// AWS Bedrock backend using aws-sdk-go-v2 bedrockruntime.
//
// Information Hiding:
// - AWS credential chain and region resolution
// - Converse API request/response format for chat and completion
// - Per-vendor InvokeModel bodies for embeddings (Titan, Cohere)

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/model"
)

const (
	bedrockDefaultRegion    = "us-east-1"
	bedrockDefaultMaxTokens = 4096
	bedrockJSONContentType  = "application/json"
	titanDefaultDimensions  = 1024
	cohereDefaultInputType  = "search_document"

	familyTitanEmbed  = "amazon.titan-embed"
	familyCohereEmbed = "cohere.embed"
)

// bedrockAPI is the subset of the bedrockruntime client the backend uses.
type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockBackend implements Backend for AWS Bedrock. Model ids may be direct
// ids, cross-region profile ids or inference profile ARNs.
type BedrockBackend struct {
	client   bedrockAPI
	registry *capability.Registry
	initErr  error
}

// NewBedrockBackend creates a Bedrock backend. Credentials come from the AWS
// default chain; cfg.Region falls back to us-east-1 when neither it nor the
// environment names one.
func NewBedrockBackend(cfg BackendConfig) *BedrockBackend {
	b := &BedrockBackend{registry: cfg.registry()}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		b.initErr = model.Wrap(model.KindConfiguration, err, "load AWS configuration")
		return b
	}
	if awsCfg.Region == "" {
		awsCfg.Region = bedrockDefaultRegion
	}

	b.client = bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
	})
	return b
}

func newBedrockBackendWithClient(client bedrockAPI, reg *capability.Registry) *BedrockBackend {
	if reg == nil {
		reg = capability.Default()
	}
	return &BedrockBackend{client: client, registry: reg}
}

// Name returns the backend name.
func (b *BedrockBackend) Name() string { return "bedrock" }

func (b *BedrockBackend) SupportsChat() bool       { return true }
func (b *BedrockBackend) SupportsCompletion() bool { return true }
func (b *BedrockBackend) SupportsEmbeddings() bool { return true }

func (b *BedrockBackend) ready(modelID string) error {
	if b.initErr != nil {
		if e, ok := model.AsError(b.initErr); ok {
			return e.WithBackend(b.Name(), modelID)
		}
		return b.initErr
	}
	return nil
}

// Chat sends a Converse request.
func (b *BedrockBackend) Chat(ctx context.Context, modelID string, req *ChatRequest) (*ChatResponse, error) {
	if err := gateChat(b.registry, b, modelID, req); err != nil {
		return nil, err
	}
	return b.converse(ctx, modelID, req, "chat")
}

// Complete maps the prompt onto a one-turn Converse call.
func (b *BedrockBackend) Complete(ctx context.Context, modelID string, req *CompletionRequest) (*CompletionResponse, error) {
	if err := gate(b.registry, b, modelID, model.OpCompletion); err != nil {
		return nil, err
	}
	resp, err := b.converse(ctx, modelID, chatFromCompletion(req), "completion")
	if err != nil {
		return nil, err
	}
	return completionFromChat(resp), nil
}

// Embed invokes the model once per input. Titan accepts a single text per
// call; Cohere accepts a batch.
func (b *BedrockBackend) Embed(ctx context.Context, modelID string, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := gateEmbed(b.registry, b, modelID, req); err != nil {
		return nil, err
	}
	if err := b.ready(modelID); err != nil {
		return nil, err
	}

	switch embeddingFamily(modelID) {
	case familyCohereEmbed:
		body, err := cohereEmbeddingBody(req)
		if err != nil {
			return nil, translationError(err, b.Name(), modelID)
		}
		raw, err := b.invoke(ctx, modelID, body)
		if err != nil {
			return nil, err
		}
		vectors, err := parseCohereEmbeddings(raw)
		if err != nil {
			return nil, translationError(err, b.Name(), modelID)
		}
		if len(vectors) != len(req.Input) {
			return nil, model.Errorf(model.KindTranslation, "expected %d embeddings, got %d", len(req.Input), len(vectors)).
				WithBackend(b.Name(), modelID)
		}
		return &EmbeddingResponse{Embeddings: vectors}, nil
	case familyTitanEmbed:
		out := &EmbeddingResponse{Embeddings: make([][]float32, 0, len(req.Input)), Usage: &TokenUsage{}}
		for _, text := range req.Input {
			body, err := titanEmbeddingBody(text, req.Dimensions)
			if err != nil {
				return nil, translationError(err, b.Name(), modelID)
			}
			raw, err := b.invoke(ctx, modelID, body)
			if err != nil {
				return nil, err
			}
			vector, tokens, err := parseTitanEmbedding(raw)
			if err != nil {
				return nil, translationError(err, b.Name(), modelID)
			}
			out.Embeddings = append(out.Embeddings, vector)
			out.Usage.PromptTokens += tokens
			out.Usage.TotalTokens += tokens
		}
		return out, nil
	default:
		return nil, model.Errorf(model.KindUnsupportedOperation, "no embedding body format for model").
			WithBackend(b.Name(), modelID)
	}
}

func (b *BedrockBackend) converse(ctx context.Context, modelID string, req *ChatRequest, op string) (*ChatResponse, error) {
	if err := b.ready(modelID); err != nil {
		return nil, err
	}

	input, err := toConverseInput(modelID, req)
	if err != nil {
		return nil, translationError(err, b.Name(), modelID)
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, transportError(ctx, err, b.Name(), modelID, op)
	}

	resp, err := fromConverseOutput(output)
	if err != nil {
		return nil, translationError(err, b.Name(), modelID)
	}
	return resp, nil
}

func (b *BedrockBackend) invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String(bedrockJSONContentType),
		Accept:      aws.String(bedrockJSONContentType),
	})
	if err != nil {
		return nil, transportError(ctx, err, b.Name(), modelID, "embedding")
	}
	return output.Body, nil
}

// toConverseInput is pure: the same request always yields the same payload.
func toConverseInput(modelID string, req *ChatRequest) (*bedrockruntime.ConverseInput, error) {
	msgs, err := toConverseMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	maxTokens := int32(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = bedrockDefaultMaxTokens
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:     aws.Int32(maxTokens),
			Temperature:   req.Temperature,
			StopSequences: req.Stop,
		},
	}
	if system := systemPrompt(req.Messages); system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := toConverseTools(req.Tools)
		if err != nil {
			return nil, err
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: tools}
	}
	return input, nil
}

func toConverseMessages(messages []ChatMessage) ([]types.Message, error) {
	var out []types.Message

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// carried in input.System
		case RoleUser:
			var blocks []types.ContentBlock
			for j, img := range msg.Images {
				block, err := converseImage(img)
				if err != nil {
					return nil, fmt.Errorf("message %d image %d: %w", i, j, err)
				}
				blocks = append(blocks, block)
			}
			if msg.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: msg.Content})
			}
			out = append(out, types.Message{Role: types.ConversationRoleUser, Content: blocks})
		case RoleAssistant:
			var blocks []types.ContentBlock
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, model.Errorf(model.KindTranslation, "tool call %q has malformed arguments", tc.Name)
					}
				}
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				}})
			}
			out = append(out, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
		case RoleTool:
			out = append(out, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				}}},
			})
		default:
			return nil, model.Errorf(model.KindTranslation, "message %d has unknown role %q", i, msg.Role)
		}
	}

	return out, nil
}

// converseImage accepts inline bytes only; Converse has no URL image source.
func converseImage(img ImageContent) (types.ContentBlock, error) {
	if len(img.Data) == 0 {
		if img.URL != "" {
			return nil, model.Errorf(model.KindTranslation, "bedrock does not accept image urls")
		}
		return nil, model.Errorf(model.KindTranslation, "image has neither data nor url")
	}
	format, ok := imageFormat(img.MediaType)
	if !ok {
		return nil, model.Errorf(model.KindTranslation, "unsupported image media type %q", img.MediaType)
	}
	return &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: img.Data},
	}}, nil
}

func imageFormat(mediaType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mediaType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func toConverseTools(tools []ToolDefinition) ([]types.Tool, error) {
	result := make([]types.Tool, len(tools))
	for i, t := range tools {
		if err := validSchema(t); err != nil {
			return nil, err
		}
		schema := t.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		result[i] = &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}}
	}
	return result, nil
}

func fromConverseOutput(output *bedrockruntime.ConverseOutput) (*ChatResponse, error) {
	member, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, model.Errorf(model.KindTranslation, "converse output carries no message")
	}

	msg := ChatMessage{Role: RoleAssistant}
	for _, block := range member.Value.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			msg.Content += v.Value
		case *types.ContentBlockMemberToolUse:
			args := json.RawMessage("{}")
			if v.Value.Input != nil {
				raw, err := v.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, fmt.Errorf("decode tool input: %w", err)
				}
				args = raw
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        aws.ToString(v.Value.ToolUseId),
				Name:      aws.ToString(v.Value.Name),
				Arguments: args,
			})
		case *types.ContentBlockMemberImage:
			if src, ok := v.Value.Source.(*types.ImageSourceMemberBytes); ok {
				msg.Images = append(msg.Images, ImageContent{
					MediaType: "image/" + string(v.Value.Format),
					Data:      src.Value,
				})
			}
		}
	}

	resp := &ChatResponse{Message: msg, FinishReason: string(output.StopReason)}
	if u := output.Usage; u != nil {
		resp.Usage = &TokenUsage{
			PromptTokens:     uint32(aws.ToInt32(u.InputTokens)),
			CompletionTokens: uint32(aws.ToInt32(u.OutputTokens)),
			TotalTokens:      uint32(aws.ToInt32(u.TotalTokens)),
		}
	}
	return resp, nil
}

// embeddingFamily strips any region prefix or ARN so family detection works
// for every id form the registry accepts.
func embeddingFamily(modelID string) string {
	id := capability.ParseModelID(modelID)
	name := modelID
	if id.Vendor() != "" {
		name = id.Vendor() + "." + id.Name()
	}
	switch {
	case strings.HasPrefix(name, familyTitanEmbed):
		return familyTitanEmbed
	case strings.HasPrefix(name, familyCohereEmbed):
		return familyCohereEmbed
	default:
		return ""
	}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount uint32    `json:"inputTextTokenCount"`
}

func titanEmbeddingBody(text string, dimensions int) ([]byte, error) {
	if dimensions == 0 {
		dimensions = titanDefaultDimensions
	}
	return json.Marshal(titanRequest{InputText: text, Dimensions: dimensions, Normalize: true})
}

func parseTitanEmbedding(raw []byte) ([]float32, uint32, error) {
	var resp titanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode titan embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, 0, model.Errorf(model.KindTranslation, "titan response has no embedding")
	}
	return resp.Embedding, resp.InputTextTokenCount, nil
}

type cohereRequest struct {
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type cohereResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

func cohereEmbeddingBody(req *EmbeddingRequest) ([]byte, error) {
	return json.Marshal(cohereRequest{
		Texts:          req.Input,
		InputType:      cohereDefaultInputType,
		EmbeddingTypes: []string{"float"},
	})
}

func parseCohereEmbeddings(raw []byte) ([][]float32, error) {
	var resp cohereResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode cohere embeddings: %w", err)
	}
	return resp.Embeddings.Float, nil
}

// Verify BedrockBackend implements Backend
var _ Backend = (*BedrockBackend)(nil)
