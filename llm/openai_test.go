package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI serves canned chat and embedding responses and records the last body.
type fakeOpenAI struct {
	hits   atomic.Int32
	mu     sync.Mutex
	last   map[string]any
	status atomic.Int32
	chat   string
	embed  string
}

func (f *fakeOpenAI) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	body, _ := io.ReadAll(r.Body)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	f.mu.Lock()
	f.last = decoded
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status := int(f.status.Load()); status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
		return
	}
	switch r.URL.Path {
	case "/v1/chat/completions":
		_, _ = io.WriteString(w, f.chat)
	case "/v1/embeddings":
		_, _ = io.WriteString(w, f.embed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeOpenAI(t *testing.T) (*fakeOpenAI, BackendConfig) {
	t.Helper()
	fake := &fakeOpenAI{
		chat: `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "checking",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 4, "total_tokens": 15}
		}`,
		embed: `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]},
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`,
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, BackendConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}
}

func TestOpenAIChatRoundTrip(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewOpenAIBackend(cfg)
	temp := float32(0.2)

	resp, err := b.Chat(context.Background(), "gpt-4o", &ChatRequest{
		Messages:    []ChatMessage{SystemMessage("be brief"), UserMessage("hi")},
		Tools:       []ToolDefinition{{Name: "lookup", Parameters: map[string]interface{}{"type": "object"}}},
		MaxTokens:   100,
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", fake.lastBody()["model"])
	assert.EqualValues(t, 100, fake.lastBody()["max_tokens"])
	msgs := fake.lastBody()["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	assert.Equal(t, "checking", resp.Text())
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"go"}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.Equal(t, uint32(15), resp.Usage.TotalTokens)
}

func TestOpenAICompleteMapsOntoChat(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewOpenAIBackend(cfg)

	resp, err := b.Complete(context.Background(), "gpt-4o", &CompletionRequest{Prompt: "hello", System: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "checking", resp.Text)

	msgs := fake.lastBody()["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestOpenAIEmbedPreservesInputOrder(t *testing.T) {
	_, cfg := newFakeOpenAI(t)
	b := NewOpenAIBackend(cfg)

	resp, err := b.Embed(context.Background(), "text-embedding-3-small", &EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, resp.Embeddings[0])
	assert.Equal(t, []float32{0.3, 0.4}, resp.Embeddings[1])
}

func TestEmbedOnChatOnlyModelFailsBeforeNetwork(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewOpenAIBackend(cfg)

	_, err := b.Embed(context.Background(), "gpt-4o", &EmbeddingRequest{Input: []string{"a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)
	assert.Equal(t, int32(0), fake.hits.Load())
}

func TestDeepSeekHasNoEmbeddings(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewDeepSeekBackend(cfg)

	_, err := b.Embed(context.Background(), "deepseek-chat", &EmbeddingRequest{Input: []string{"a"}})
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)
	assert.Equal(t, int32(0), fake.hits.Load())
}

func TestImagesRequireVision(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewDeepSeekBackend(cfg)

	_, err := b.Chat(context.Background(), "deepseek-chat", &ChatRequest{
		Messages: []ChatMessage{UserImageMessage("what is this", ImageContent{URL: "https://example.com/a.png"})},
	})
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)
	assert.Equal(t, int32(0), fake.hits.Load())
}

func TestUnknownModelFailsBeforeNetwork(t *testing.T) {
	fake, cfg := newFakeOpenAI(t)
	b := NewOpenAIBackend(cfg)

	_, err := b.Chat(context.Background(), "not-a-model", &ChatRequest{Messages: []ChatMessage{UserMessage("hi")}})
	assert.ErrorIs(t, err, model.ErrUnknownModel)
	assert.Equal(t, int32(0), fake.hits.Load())
}

func TestOpenAIStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fake, cfg := newFakeOpenAI(t)
			fake.status.Store(int32(tt.status))
			b := NewOpenAIBackend(cfg)

			_, err := b.Chat(context.Background(), "gpt-4o", &ChatRequest{Messages: []ChatMessage{UserMessage("hi")}})
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrTransport)
			assert.Equal(t, tt.retryable, model.IsRetryable(err))

			e, ok := model.AsError(err)
			require.True(t, ok)
			assert.Equal(t, "openai", e.Backend)
			assert.Equal(t, "gpt-4o", e.Model)
		})
	}
}

func TestToOpenAIChatRequestIsDeterministic(t *testing.T) {
	req := &ChatRequest{
		Messages: []ChatMessage{
			SystemMessage("sys"),
			UserImageMessage("look", ImageContent{MediaType: "image/png", Data: []byte{1, 2, 3}}),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "f", Arguments: json.RawMessage(`{}`)}}},
			ToolResultMessage("c1", "done"),
		},
		MaxTokens: 10,
	}

	a, err := toOpenAIChatRequest("gpt-4o", req)
	require.NoError(t, err)
	b, err := toOpenAIChatRequest("gpt-4o", req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.Len(t, a.Messages[1].MultiContent, 2)
	assert.Equal(t, "data:image/png;base64,AQID", a.Messages[1].MultiContent[1].ImageURL.URL)
	assert.Equal(t, "c1", a.Messages[3].ToolCallID)
}

func TestToOpenAIChatRequestReasoningModel(t *testing.T) {
	temp := float32(0.7)
	wire, err := toOpenAIChatRequest("gpt-5.2", &ChatRequest{
		Messages:    []ChatMessage{UserMessage("hi")},
		MaxTokens:   256,
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Zero(t, wire.MaxTokens)
	assert.Equal(t, 256, wire.MaxCompletionTokens)
	assert.Zero(t, wire.Temperature)
}

func TestToOpenAIChatRequestResponseFormats(t *testing.T) {
	wire, err := toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   NewJSONObjectFormat(),
	})
	require.NoError(t, err)
	require.NotNil(t, wire.ResponseFormat)
	assert.Equal(t, "json_object", string(wire.ResponseFormat.Type))
	assert.Nil(t, wire.ResponseFormat.JSONSchema)

	schema := json.RawMessage(`{"type":"object","properties":{"score":{"type":"number"}}}`)
	wire, err = toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   NewJSONSchemaFormat("verdict", schema),
	})
	require.NoError(t, err)
	require.NotNil(t, wire.ResponseFormat.JSONSchema)
	assert.Equal(t, "json_schema", string(wire.ResponseFormat.Type))
	assert.Equal(t, "verdict", wire.ResponseFormat.JSONSchema.Name)
	assert.True(t, wire.ResponseFormat.JSONSchema.Strict)
	assert.Equal(t, schema, wire.ResponseFormat.JSONSchema.Schema)

	wire, err = toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   &ResponseFormat{Type: ResponseFormatText},
	})
	require.NoError(t, err)
	assert.Nil(t, wire.ResponseFormat)

	_, err = toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserMessage("hi")},
		Format:   &ResponseFormat{Type: ResponseFormatJSONSchema},
	})
	assert.ErrorIs(t, err, model.ErrTranslation)
}

func TestTranslationErrors(t *testing.T) {
	_, err := toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserImageMessage("x", ImageContent{})},
	})
	assert.ErrorIs(t, err, model.ErrTranslation)

	_, err = toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "f", Arguments: json.RawMessage(`{bad`)}}}},
	})
	assert.ErrorIs(t, err, model.ErrTranslation)

	_, err = toOpenAIChatRequest("gpt-4o", &ChatRequest{
		Messages: []ChatMessage{UserMessage("x")},
		Tools:    []ToolDefinition{{Name: "f", Parameters: map[string]interface{}{"type": "array"}}},
	})
	assert.ErrorIs(t, err, model.ErrTranslation)
}

func TestOllamaDefaults(t *testing.T) {
	b := NewOllamaBackend(BackendConfig{})
	assert.Equal(t, "ollama", b.Name())
	assert.True(t, b.SupportsEmbeddings())

	fake, cfg := newFakeOpenAI(t)
	cfg.APIKey = ""
	b = NewOllamaBackend(cfg)
	_, err := b.Embed(context.Background(), "nomic-embed-text", &EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.hits.Load())
}
