// LLM Client Factory - Ergonomic builder-first API for creating clients.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	openai, err := llm.BackendOpenAI.FromEnv()  // Uses gpt-5.2
//	claude, err := llm.BackendAnthropic.FromEnv()  // Uses claude-opus-4-5
//
//	// With custom model
//	codex, err := llm.BackendOpenAI.Model(llm.ModelOpenAIGPT52Codex).FromEnv()
//
//	// Full configuration
//	custom, err := llm.BackendAnthropic.
//	    Model(llm.ModelAnthropicClaudeSonnet4).
//	    MaxTokens(8192).
//	    Temperature(0.3).
//	    Timeout(30 * time.Second).
//	    FromEnv()
//
//	// Bedrock cross-region profile, credentials from the AWS chain
//	bedrock, err := llm.BackendBedrock.Model("us.anthropic.claude-sonnet-4-20250514-v1:0").Region("us-east-1").Build()

package llm

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Builder defaults.
const (
	DefaultMaxTokens   uint32  = 4096
	DefaultTemperature float32 = 0.7
	DefaultTimeout             = 120 * time.Second
)

const tracerName = "github.com/richinex/llmchain/llm"

// BackendType represents supported LLM backends.
type BackendType int

const (
	// BackendOpenAI is the OpenAI backend (GPT models).
	BackendOpenAI BackendType = iota
	// BackendAnthropic is the Anthropic backend (Claude models).
	BackendAnthropic
	// BackendDeepSeek is the DeepSeek backend.
	BackendDeepSeek
	// BackendGemini is the Google Gemini backend.
	BackendGemini
	// BackendOllama is a local Ollama server.
	BackendOllama
	// BackendBedrock is AWS Bedrock.
	BackendBedrock
)

// BackendTypes lists every backend in declaration order.
var BackendTypes = []BackendType{BackendOpenAI, BackendAnthropic, BackendDeepSeek, BackendGemini, BackendOllama, BackendBedrock}

// String returns the string representation of the backend type.
func (p BackendType) String() string {
	switch p {
	case BackendOpenAI:
		return "openai"
	case BackendAnthropic:
		return "anthropic"
	case BackendDeepSeek:
		return "deepseek"
	case BackendGemini:
		return "gemini"
	case BackendOllama:
		return "ollama"
	case BackendBedrock:
		return "bedrock"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this backend's API key.
// Ollama and Bedrock take no key.
func (p BackendType) EnvVar() string {
	switch p {
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	case BackendAnthropic:
		return "ANTHROPIC_API_KEY"
	case BackendDeepSeek:
		return "DEEPSEEK_API_KEY"
	case BackendGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// RequiresKey reports whether Build needs an API key.
func (p BackendType) RequiresKey() bool {
	return p.EnvVar() != ""
}

// DefaultModel returns the default model for this backend.
func (p BackendType) DefaultModel() string {
	switch p {
	case BackendOpenAI:
		return ModelOpenAIGPT52
	case BackendAnthropic:
		return ModelAnthropicClaudeOpus45
	case BackendDeepSeek:
		return ModelDeepSeekV32
	case BackendGemini:
		return ModelGeminiFlash3
	case BackendOllama:
		return ModelOllamaLlama32
	case BackendBedrock:
		return ModelBedrockClaudeSonnet35
	default:
		return ""
	}
}

// ParseBackendType parses a backend from string (case-insensitive).
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return BackendOpenAI, nil
	case "anthropic", "claude":
		return BackendAnthropic, nil
	case "deepseek":
		return BackendDeepSeek, nil
	case "gemini", "google":
		return BackendGemini, nil
	case "ollama":
		return BackendOllama, nil
	case "bedrock", "aws-bedrock", "aws":
		return BackendBedrock, nil
	default:
		return 0, model.Errorf(model.KindConfiguration, "unknown backend: %s", s)
	}
}

// FromEnv creates a client with defaults, reading the API key from environment.
func (p BackendType) FromEnv() (*Client, error) {
	return NewBuilder(p).FromEnv().Build()
}

// Model starts configuring this backend with a specific model.
func (p BackendType) Model(m string) *Builder {
	return NewBuilder(p).Model(m)
}

// APIKey creates a client with an explicit API key (uses defaults for everything else).
func (p BackendType) APIKey(key string) (*Client, error) {
	return NewBuilder(p).APIKey(key).Build()
}

// Builder accumulates client configuration. Build returns an immutable Client.
type Builder struct {
	backendType BackendType
	model       string
	apiKey      string
	fromEnv     bool
	baseURL     string
	region      string
	maxTokens   uint32
	temperature *float32
	timeout     time.Duration
	registry    *capability.Registry
	logger      *zerolog.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	httpClient  *http.Client
	backend     Backend
}

// NewBuilder creates a new builder for the given backend.
func NewBuilder(backendType BackendType) *Builder {
	return &Builder{backendType: backendType}
}

// Model sets the model to use.
func (b *Builder) Model(m string) *Builder {
	b.model = m
	return b
}

// APIKey sets an explicit API key.
func (b *Builder) APIKey(key string) *Builder {
	b.apiKey = key
	return b
}

// FromEnv reads the API key from the backend's environment variable at Build time.
func (b *Builder) FromEnv() *Builder {
	b.fromEnv = true
	return b
}

// BaseURL points the backend at a different endpoint.
func (b *Builder) BaseURL(u string) *Builder {
	b.baseURL = u
	return b
}

// Region sets the AWS region (Bedrock only).
func (b *Builder) Region(r string) *Builder {
	b.region = r
	return b
}

// MaxTokens sets the default maximum tokens for responses.
func (b *Builder) MaxTokens(tokens uint32) *Builder {
	b.maxTokens = tokens
	return b
}

// Temperature sets the default temperature (0.0 = deterministic, 1.0 = creative).
func (b *Builder) Temperature(temp float32) *Builder {
	b.temperature = &temp
	return b
}

// Timeout bounds each dispatch. Zero keeps the default; negative disables it.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// Registry sets the capability registry used for validation.
func (b *Builder) Registry(r *capability.Registry) *Builder {
	b.registry = r
	return b
}

// Logger sets the logger for dispatch events.
func (b *Builder) Logger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// Metrics sets the metrics collector.
func (b *Builder) Metrics(m *metrics.Collector) *Builder {
	b.metrics = m
	return b
}

// Tracer sets the tracer for dispatch spans.
func (b *Builder) Tracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// HTTPClient sets the HTTP client handed to the SDK.
func (b *Builder) HTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithBackend uses an already constructed backend instead of building one.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// Build validates the configuration and returns the client.
func (b *Builder) Build() (*Client, error) {
	m := b.model
	if m == "" {
		m = b.backendType.DefaultModel()
	}
	if m == "" {
		return nil, model.Errorf(model.KindConfiguration, "no model for backend %s", b.backendType)
	}

	reg := b.registry
	if reg == nil {
		reg = capability.Default()
	}

	backend := b.backend
	if backend == nil {
		apiKey := b.apiKey
		if apiKey == "" && b.fromEnv && b.backendType.RequiresKey() {
			envVar := b.backendType.EnvVar()
			apiKey = os.Getenv(envVar)
			if apiKey == "" {
				return nil, model.Errorf(model.KindConfiguration, "%s: %s environment variable not set", b.backendType, envVar)
			}
		}
		if apiKey == "" && b.backendType.RequiresKey() {
			return nil, model.Errorf(model.KindConfiguration, "%s: API key required", b.backendType)
		}

		var err error
		backend, err = newBackend(b.backendType, BackendConfig{
			APIKey:     apiKey,
			BaseURL:    b.baseURL,
			Region:     b.region,
			HTTPClient: b.httpClient,
			Registry:   reg,
		})
		if err != nil {
			return nil, err
		}
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if b.temperature != nil {
		temperature = *b.temperature
	}
	timeout := b.timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	log := zerolog.Nop()
	if b.logger != nil {
		log = *b.logger
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Client{
		backend:     backend,
		backendType: b.backendType,
		model:       m,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		registry:    reg,
		log:         log.With().Str("backend", backend.Name()).Str("model", m).Logger(),
		metrics:     b.metrics,
		tracer:      tracer,
	}, nil
}

func newBackend(t BackendType, cfg BackendConfig) (Backend, error) {
	switch t {
	case BackendOpenAI:
		return NewOpenAIBackend(cfg), nil
	case BackendAnthropic:
		return NewAnthropicBackend(cfg), nil
	case BackendDeepSeek:
		return NewDeepSeekBackend(cfg), nil
	case BackendGemini:
		return NewGeminiBackend(cfg), nil
	case BackendOllama:
		return NewOllamaBackend(cfg), nil
	case BackendBedrock:
		return NewBedrockBackend(cfg), nil
	default:
		return nil, model.Errorf(model.KindConfiguration, "unknown backend type: %v", t)
	}
}

// Model identifier constants for all supported backends.

// OpenAI model identifiers (January 2026)
const (
	// ModelOpenAIGPT52 is GPT-5.2: Latest flagship model (December 2025).
	ModelOpenAIGPT52 = "gpt-5.2"
	// ModelOpenAIGPT52Codex is GPT-5.2-Codex: Agentic coding specialist.
	ModelOpenAIGPT52Codex = "gpt-5.2-codex"
	// ModelOpenAIGPT4o is GPT-4o: Legacy model.
	ModelOpenAIGPT4o = "gpt-4o"
	// ModelOpenAIGPT4oMini is GPT-4o-mini: Legacy model.
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
	// ModelOpenAIEmbedding3Small is the small text embedding model.
	ModelOpenAIEmbedding3Small = "text-embedding-3-small"
)

// Anthropic model identifiers (January 2026)
const (
	// ModelAnthropicClaudeOpus45 is Claude Opus 4.5: Latest flagship, best for coding/agents.
	ModelAnthropicClaudeOpus45 = "claude-opus-4-5-20251101"
	// ModelAnthropicClaudeSonnet4 is Claude Sonnet 4: Balanced performance.
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	// ModelAnthropicClaudeHaiku4 is Claude Haiku 4: Fast and efficient.
	ModelAnthropicClaudeHaiku4 = "claude-haiku-4-20250514"
)

// DeepSeek model identifiers (January 2026)
const (
	// ModelDeepSeekV32 is V3.2: Latest general model.
	ModelDeepSeekV32 = "deepseek-v3.2"
	// ModelDeepSeekR1 is R1: Reasoning model with chain-of-thought.
	ModelDeepSeekR1 = "deepseek-r1"
)

// Gemini model identifiers (January 2026)
const (
	// ModelGeminiPro3 is Gemini 3 Pro: Advanced reasoning, 1M context window.
	ModelGeminiPro3 = "gemini-3-pro"
	// ModelGeminiFlash3 is Gemini 3 Flash: Speed optimized with frontier intelligence.
	ModelGeminiFlash3 = "gemini-3-flash"
	// ModelGeminiEmbedding is the Gemini text embedding model.
	ModelGeminiEmbedding = "gemini-embedding-001"
)

// Ollama model identifiers
const (
	ModelOllamaLlama32    = "llama3.2"
	ModelOllamaLlava      = "llava"
	ModelOllamaNomicEmbed = "nomic-embed-text"
)

// Bedrock model identifiers
const (
	ModelBedrockClaudeSonnet35 = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	ModelBedrockClaudeSonnet4  = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	ModelBedrockTitanEmbedV2   = "amazon.titan-embed-text-v2:0"
	ModelBedrockCohereEmbedV3  = "cohere.embed-english-v3"
)
