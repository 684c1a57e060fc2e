package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend records requests and answers with a fixed text.
type stubBackend struct {
	name     string
	reply    string
	err      error
	block    bool
	lastChat *ChatRequest
	lastComp *CompletionRequest
	calls    int
}

func (s *stubBackend) Name() string             { return s.name }
func (s *stubBackend) SupportsChat() bool       { return true }
func (s *stubBackend) SupportsCompletion() bool { return true }
func (s *stubBackend) SupportsEmbeddings() bool { return true }

func (s *stubBackend) wait(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *stubBackend) Chat(ctx context.Context, _ string, req *ChatRequest) (*ChatResponse, error) {
	s.calls++
	s.lastChat = req
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &ChatResponse{
		Message: AssistantMessage(s.reply),
		Usage:   &TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func (s *stubBackend) Complete(ctx context.Context, _ string, req *CompletionRequest) (*CompletionResponse, error) {
	s.calls++
	s.lastComp = req
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &CompletionResponse{Text: s.reply}, nil
}

func (s *stubBackend) Embed(ctx context.Context, _ string, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	s.calls++
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return &EmbeddingResponse{Embeddings: make([][]float32, len(req.Input))}, nil
}

func TestClientFillsDefaultsWithoutMutatingRequest(t *testing.T) {
	stub := &stubBackend{name: "openai", reply: "ok"}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").MaxTokens(256).Temperature(0.3).WithBackend(stub).Build()
	require.NoError(t, err)

	req := &ChatRequest{Messages: []ChatMessage{UserMessage("hi")}}
	resp, err := client.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())

	assert.Equal(t, uint32(256), stub.lastChat.MaxTokens)
	require.NotNil(t, stub.lastChat.Temperature)
	assert.Equal(t, float32(0.3), *stub.lastChat.Temperature)
	assert.Zero(t, req.MaxTokens)
	assert.Nil(t, req.Temperature)
}

func TestClientKeepsExplicitRequestValues(t *testing.T) {
	stub := &stubBackend{name: "openai", reply: "ok"}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").WithBackend(stub).Build()
	require.NoError(t, err)

	temp := float32(0)
	_, err = client.Complete(context.Background(), &CompletionRequest{Prompt: "p", MaxTokens: 9, Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, uint32(9), stub.lastComp.MaxTokens)
	assert.Equal(t, float32(0), *stub.lastComp.Temperature)
}

func TestClientName(t *testing.T) {
	client, err := NewBuilder(BackendBedrock).Model("us.anthropic.claude-sonnet-4-20250514-v1:0").
		WithBackend(&stubBackend{name: "bedrock"}).Build()
	require.NoError(t, err)
	assert.Equal(t, "bedrock:us.anthropic.claude-sonnet-4-20250514-v1:0", client.Name())

	ref, err := model.ParseProviderRef(client.Name())
	require.NoError(t, err)
	assert.Equal(t, "us.anthropic.claude-sonnet-4-20250514-v1:0", ref.Model)
}

func TestClientTimeoutIsRetryableTransport(t *testing.T) {
	stub := &stubBackend{name: "openai", block: true}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").Timeout(10 * time.Millisecond).WithBackend(stub).Build()
	require.NoError(t, err)

	_, err = client.Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransport)
	assert.True(t, model.IsRetryable(err))
}

func TestClientParentCancellation(t *testing.T) {
	stub := &stubBackend{name: "openai", reply: "ok"}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").WithBackend(stub).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Ask(ctx, "hi")
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Equal(t, 0, stub.calls)
}

func TestClientWrapsForeignErrors(t *testing.T) {
	stub := &stubBackend{name: "openai", err: errors.New("boom")}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").WithBackend(stub).Build()
	require.NoError(t, err)

	_, err = client.Ask(context.Background(), "hi")
	e, ok := model.AsError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindTransport, e.Kind)
	assert.Equal(t, "openai", e.Backend)
	assert.Equal(t, "gpt-4o", e.Model)
}

func TestClientRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	stub := &stubBackend{name: "openai", reply: "ok"}
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").Metrics(collector).WithBackend(stub).Build()
	require.NoError(t, err)
	embedder, err := NewBuilder(BackendOpenAI).Model("text-embedding-3-small").Metrics(collector).WithBackend(stub).Build()
	require.NoError(t, err)

	_, err = client.Ask(context.Background(), "hi")
	require.NoError(t, err)
	_, err = embedder.Embed(context.Background(), &EmbeddingRequest{Input: []string{"a"}})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "llmchain_dispatch_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "llmchain_tokens_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClientCapabilities(t *testing.T) {
	client, err := NewBuilder(BackendOpenAI).Model("gpt-4o").WithBackend(&stubBackend{name: "openai"}).Build()
	require.NoError(t, err)

	rec, err := client.Capabilities()
	require.NoError(t, err)
	assert.True(t, rec.Vision)
	assert.False(t, rec.Embeddings)
}

func TestClientGatesCustomBackends(t *testing.T) {
	stub := &stubBackend{name: "custom", reply: "ok"}

	client, err := NewBuilder(BackendOpenAI).Model("mystery-model").WithBackend(stub).Build()
	require.NoError(t, err)
	_, err = client.Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, model.ErrUnknownModel)

	client, err = NewBuilder(BackendOpenAI).Model("gpt-4o").WithBackend(stub).Build()
	require.NoError(t, err)
	_, err = client.Embed(context.Background(), &EmbeddingRequest{Input: []string{"a"}})
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)

	client, err = NewBuilder(BackendOllama).Model("llama3.2").WithBackend(stub).Build()
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{UserImageMessage("look", ImageContent{MediaType: "image/png", Data: []byte{1}})},
	})
	assert.ErrorIs(t, err, model.ErrUnsupportedOperation)

	assert.Equal(t, 0, stub.calls)
}
