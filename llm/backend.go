// Package llm provides LLM backend abstractions.
//
// Backend interface - the abstract interface for LLM providers.
// Each backend implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error classification
//
// Every dispatch is gated by the capability registry before any network I/O.

package llm

import (
	"context"
	"net/http"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/model"
)

// Backend is one provider integration. The model is passed per call so one
// backend value serves every model of its provider.
type Backend interface {
	// Name returns the backend name (for logging/debugging).
	Name() string

	SupportsChat() bool
	SupportsCompletion() bool
	SupportsEmbeddings() bool

	// Chat sends a message sequence and returns the assistant message.
	Chat(ctx context.Context, modelID string, req *ChatRequest) (*ChatResponse, error)

	// Complete sends a single prompt.
	Complete(ctx context.Context, modelID string, req *CompletionRequest) (*CompletionResponse, error)

	// Embed returns one vector per input string.
	Embed(ctx context.Context, modelID string, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// BackendConfig carries connection settings into a backend constructor.
// Credentials are opaque to everything but the SDK client.
type BackendConfig struct {
	APIKey     string
	BaseURL    string
	Region     string
	HTTPClient *http.Client
	Registry   *capability.Registry
}

func (c BackendConfig) registry() *capability.Registry {
	if c.Registry != nil {
		return c.Registry
	}
	return capability.Default()
}

// gate checks backend-level support and the model's capability record for op.
func gate(reg *capability.Registry, b Backend, modelID string, op model.Operation, extra ...capability.Capability) error {
	var supported bool
	switch op {
	case model.OpChat:
		supported = b.SupportsChat()
	case model.OpCompletion:
		supported = b.SupportsCompletion()
	case model.OpEmbedding:
		supported = b.SupportsEmbeddings()
	}
	if !supported {
		return model.Errorf(model.KindUnsupportedOperation, "backend does not support %s", op).
			WithBackend(b.Name(), modelID)
	}

	caps := append([]capability.Capability{capability.ForOperation(op)}, extra...)
	if err := reg.Require(modelID, caps...); err != nil {
		if e, ok := model.AsError(err); ok {
			return e.WithBackend(b.Name(), modelID)
		}
		return err
	}
	return nil
}

func gateChat(reg *capability.Registry, b Backend, modelID string, req *ChatRequest) error {
	var extra []capability.Capability
	if len(req.Tools) > 0 {
		extra = append(extra, capability.ToolUse)
	}
	if req.HasImages() {
		extra = append(extra, capability.Vision)
	}
	return gate(reg, b, modelID, model.OpChat, extra...)
}

func gateEmbed(reg *capability.Registry, b Backend, modelID string, req *EmbeddingRequest) error {
	if err := gate(reg, b, modelID, model.OpEmbedding); err != nil {
		return err
	}
	if len(req.Input) == 0 {
		return model.Errorf(model.KindTranslation, "embedding request has no input").WithBackend(b.Name(), modelID)
	}
	return nil
}
