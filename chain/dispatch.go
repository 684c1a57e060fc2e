// Step dispatch through the Unified Client.
//
// Information Hiding:
// - Provider selection per step
// - Client construction and caching per provider reference
// - Mapping a step mode onto chat or completion requests

package chain

import (
	"context"
	"sync"

	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/model"
)

// Dispatcher sends a resolved prompt for a step and returns the response
// text. Errors should carry backend identity.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Chain, step Step, prompt string) (string, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, c *Chain, step Step, prompt string) (string, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, c *Chain, step Step, prompt string) (string, error) {
	return f(ctx, c, step, prompt)
}

// ClientFactory builds a client for a provider reference.
type ClientFactory func(ref model.ProviderRef) (*llm.Client, error)

// BuilderFactory returns a ClientFactory that reads API keys from the
// environment. configure, if non-nil, may adjust each builder before Build.
func BuilderFactory(configure func(model.ProviderRef, *llm.Builder)) ClientFactory {
	return func(ref model.ProviderRef) (*llm.Client, error) {
		bt, err := llm.ParseBackendType(ref.Backend)
		if err != nil {
			return nil, err
		}
		b := llm.NewBuilder(bt).FromEnv()
		if ref.Model != "" {
			b.Model(ref.Model)
		}
		if configure != nil {
			configure(ref, b)
		}
		return b.Build()
	}
}

// ClientDispatcher dispatches steps through llm.Client, building one client
// per distinct provider reference.
type ClientDispatcher struct {
	factory ClientFactory

	mu      sync.Mutex
	clients map[string]*llm.Client
}

// NewClientDispatcher creates a dispatcher backed by factory.
func NewClientDispatcher(factory ClientFactory) *ClientDispatcher {
	return &ClientDispatcher{
		factory: factory,
		clients: make(map[string]*llm.Client),
	}
}

// Dispatch sends prompt as a single user message in chat mode or as a
// completion prompt in completion mode.
func (d *ClientDispatcher) Dispatch(ctx context.Context, c *Chain, step Step, prompt string) (string, error) {
	client, err := d.client(c, step)
	if err != nil {
		return "", err
	}
	op, err := step.Operation()
	if err != nil {
		return "", err
	}

	var maxTokens uint32
	if step.MaxTokens != nil {
		maxTokens = *step.MaxTokens
	}

	if op == model.OpCompletion {
		resp, err := client.Complete(ctx, &llm.CompletionRequest{
			Prompt:      prompt,
			MaxTokens:   maxTokens,
			Temperature: step.Temperature,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}

	resp, err := client.Chat(ctx, &llm.ChatRequest{
		Messages:    []llm.ChatMessage{llm.UserMessage(prompt)},
		MaxTokens:   maxTokens,
		Temperature: step.Temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (d *ClientDispatcher) client(c *Chain, step Step) (*llm.Client, error) {
	raw := step.Provider
	if raw == "" {
		raw = c.DefaultProvider
	}
	if raw == "" {
		return nil, model.Errorf(model.KindConfiguration, "no provider for step and no chain default")
	}
	ref, err := model.ParseProviderRef(raw)
	if err != nil {
		return nil, err
	}

	key := ref.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if client, ok := d.clients[key]; ok {
		return client, nil
	}
	client, err := d.factory(ref)
	if err != nil {
		return nil, err
	}
	d.clients[key] = client
	return client, nil
}
