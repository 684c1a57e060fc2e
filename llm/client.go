// Client - the Unified Client over one backend and one model.
//
// Information Hiding:
// - Capability gating against the client's registry before any backend call
// - Default filling (max tokens, temperature)
// - Per-dispatch timeout and failure classification
// - Tracing spans, metrics and debug logging around every dispatch

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client dispatches requests to one backend and model. It is immutable and
// safe for concurrent use.
type Client struct {
	backend     Backend
	backendType BackendType
	model       string
	maxTokens   uint32
	temperature float32
	timeout     time.Duration
	registry    *capability.Registry
	log         zerolog.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
}

// Name identifies the client as "backend:model".
func (c *Client) Name() string {
	return model.ProviderRef{Backend: c.backend.Name(), Model: c.model}.String()
}

// Model returns the model id.
func (c *Client) Model() string { return c.model }

// Backend returns the underlying backend.
func (c *Client) Backend() Backend { return c.backend }

// BackendType returns the backend type the client was built for.
func (c *Client) BackendType() BackendType { return c.backendType }

// Capabilities returns the model's capability record.
func (c *Client) Capabilities() (capability.Record, error) {
	return c.registry.CapabilitiesOf(c.model)
}

// Chat sends a chat request. Unset max tokens and temperature take the
// client defaults; the caller's request is not modified.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	filled := *req
	if filled.MaxTokens == 0 {
		filled.MaxTokens = c.maxTokens
	}
	if filled.Temperature == nil {
		t := c.temperature
		filled.Temperature = &t
	}

	if err := gateChat(c.registry, c.backend, c.model, &filled); err != nil {
		return nil, err
	}

	var resp *ChatResponse
	err := c.dispatch(ctx, model.OpChat, func(ctx context.Context) (*TokenUsage, error) {
		var err error
		resp, err = c.backend.Chat(ctx, c.model, &filled)
		if err != nil {
			return nil, err
		}
		return resp.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Complete sends a single prompt.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	filled := *req
	if filled.MaxTokens == 0 {
		filled.MaxTokens = c.maxTokens
	}
	if filled.Temperature == nil {
		t := c.temperature
		filled.Temperature = &t
	}

	if err := gate(c.registry, c.backend, c.model, model.OpCompletion); err != nil {
		return nil, err
	}

	var resp *CompletionResponse
	err := c.dispatch(ctx, model.OpCompletion, func(ctx context.Context) (*TokenUsage, error) {
		var err error
		resp, err = c.backend.Complete(ctx, c.model, &filled)
		if err != nil {
			return nil, err
		}
		return resp.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed returns one vector per input string.
func (c *Client) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := gateEmbed(c.registry, c.backend, c.model, req); err != nil {
		return nil, err
	}

	var resp *EmbeddingResponse
	err := c.dispatch(ctx, model.OpEmbedding, func(ctx context.Context) (*TokenUsage, error) {
		var err error
		resp, err = c.backend.Embed(ctx, c.model, req)
		if err != nil {
			return nil, err
		}
		return resp.Usage, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Ask sends one user message and returns the reply text.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Chat(ctx, &ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (c *Client) dispatch(ctx context.Context, op model.Operation, call func(context.Context) (*TokenUsage, error)) error {
	backendName := c.backend.Name()

	if err := ctx.Err(); err != nil {
		return model.Wrap(model.KindCancelled, err, "%s not dispatched", op).WithBackend(backendName, c.model)
	}

	ctx, span := c.tracer.Start(ctx, "llm."+string(op), trace.WithAttributes(
		attribute.String("llm.backend", backendName),
		attribute.String("llm.model", c.model),
		attribute.String("llm.operation", string(op)),
	))
	defer span.End()

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	usage, err := call(callCtx)
	elapsed := time.Since(start)

	if err != nil {
		err = c.classify(ctx, callCtx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if usage != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", int(usage.PromptTokens)),
			attribute.Int("llm.usage.completion_tokens", int(usage.CompletionTokens)),
		)
		c.metrics.RecordTokens(backendName, c.model, usage.PromptTokens, usage.CompletionTokens)
	}
	c.metrics.RecordDispatch(backendName, c.model, string(op), err, elapsed)

	event := c.log.Debug().Str("operation", string(op)).Dur("elapsed", elapsed)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg("dispatch")

	return err
}

// classify maps context outcomes onto the taxonomy: parent cancellation is
// Cancelled, an expired per-dispatch timeout is a retryable TransportFailure.
// Errors already in the taxonomy pass through.
func (c *Client) classify(parent, call context.Context, err error) error {
	backendName := c.backend.Name()

	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		if model.IsKind(err, model.KindCancelled) {
			return err
		}
		return model.Wrap(model.KindCancelled, err, "dispatch cancelled").WithBackend(backendName, c.model)
	}
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		e := model.Wrap(model.KindTransport, err, "dispatch timed out after %s", c.timeout).WithBackend(backendName, c.model)
		e.Retryable = true
		return e
	}
	if _, ok := model.AsError(err); ok {
		return err
	}
	return model.Wrap(model.KindTransport, err, "dispatch").WithBackend(backendName, c.model)
}
