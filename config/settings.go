// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific model and endpoint lookup

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/chain"
	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/rs/zerolog"
)

// Override source names accepted in Registry.Order.
const (
	SourceFile   = "file"
	SourceInline = "inline"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig
	Registry RegistryConfig
	History  HistoryConfig
	Retry    RetryConfig
	Log      LogConfig
}

// LLMConfig holds defaults applied to every client.
type LLMConfig struct {
	// Provider is used when a chain names no default provider.
	Provider    string        `env:"LLMCHAIN_PROVIDER" envDefault:"openai"`
	MaxTokens   uint32        `env:"LLM_MAX_TOKENS" envDefault:"4096"`
	Temperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OllamaHost    string `env:"OLLAMA_HOST"`
	AWSRegion     string `env:"AWS_REGION"`
}

// RegistryConfig locates capability overrides.
type RegistryConfig struct {
	File   string `env:"LLMCHAIN_CAPABILITIES_FILE"`
	Inline string `env:"LLMCHAIN_CAPABILITIES"`
	// Order lists which sources load first; later sources win.
	Order []string `env:"LLMCHAIN_OVERRIDES_ORDER" envDefault:"file,inline" envSeparator:","`
}

// HistoryConfig selects where run histories are written.
type HistoryConfig struct {
	// Path is a .db/.sqlite file, a .jsonl file or a directory. Empty disables persistence.
	Path string `env:"LLMCHAIN_HISTORY"`
}

// RetryConfig holds the step retry policy.
type RetryConfig struct {
	MaxRetries      int           `env:"LLMCHAIN_MAX_RETRIES" envDefault:"0"`
	InitialInterval time.Duration `env:"LLMCHAIN_RETRY_INITIAL" envDefault:"500ms"`
	MaxInterval     time.Duration `env:"LLMCHAIN_RETRY_MAX" envDefault:"10s"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// modelEnv holds the per-provider model override variables.
var modelEnv = map[llm.BackendType]string{
	llm.BackendOpenAI:    "OPENAI_MODEL",
	llm.BackendAnthropic: "ANTHROPIC_MODEL",
	llm.BackendDeepSeek:  "DEEPSEEK_MODEL",
	llm.BackendGemini:    "GEMINI_MODEL",
	llm.BackendOllama:    "OLLAMA_MODEL",
	llm.BackendBedrock:   "BEDROCK_MODEL",
}

// Load parses settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(nil)
}

// LoadFrom parses settings from environ, or the process environment when nil.
func LoadFrom(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (s *Settings) Validate() error {
	if _, err := llm.ParseBackendType(s.LLM.Provider); err != nil {
		return fmt.Errorf("LLMCHAIN_PROVIDER: %w", err)
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", s.LLM.Temperature)
	}
	if _, err := ParseOrder(strings.Join(s.Registry.Order, ",")); err != nil {
		return fmt.Errorf("LLMCHAIN_OVERRIDES_ORDER: %w", err)
	}
	if s.Retry.MaxRetries < 0 {
		return fmt.Errorf("LLMCHAIN_MAX_RETRIES must not be negative")
	}
	return nil
}

// ParseOrder parses a comma-separated override order such as "inline,file".
// Each source may appear at most once.
func ParseOrder(s string) ([]string, error) {
	var order []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if name != SourceFile && name != SourceInline {
			return nil, fmt.Errorf("unknown override source %q (want %s or %s)", part, SourceFile, SourceInline)
		}
		if seen[name] {
			return nil, fmt.Errorf("override source %q listed twice", name)
		}
		seen[name] = true
		order = append(order, name)
	}
	return order, nil
}

// BuildRegistry layers the configured overrides over the built-in table in
// Registry.Order. Sources that are not set are skipped; a source that is set
// but missing from the order is a configuration error.
func (s Settings) BuildRegistry() (*capability.Registry, error) {
	order, err := ParseOrder(strings.Join(s.Registry.Order, ","))
	if err != nil {
		return nil, model.Wrap(model.KindConfiguration, err, "override order")
	}
	listed := map[string]bool{}
	for _, src := range order {
		listed[src] = true
	}
	configured := []struct{ src, value string }{{SourceFile, s.Registry.File}, {SourceInline, s.Registry.Inline}}
	for _, c := range configured {
		if c.value != "" && !listed[c.src] {
			return nil, model.Errorf(model.KindConfiguration, "%s overrides are set but %q is not in the override order", c.src, c.src)
		}
	}
	b := capability.NewBuilder()
	for _, src := range order {
		switch src {
		case SourceFile:
			if s.Registry.File != "" {
				b.LoadFile(s.Registry.File)
			}
		case SourceInline:
			if s.Registry.Inline != "" {
				b.LoadInline(s.Registry.Inline)
			}
		}
	}
	return b.Build()
}

// RetryPolicy returns the engine retry policy.
func (s Settings) RetryPolicy() chain.RetryPolicy {
	return chain.RetryPolicy{
		MaxRetries:      s.Retry.MaxRetries,
		InitialInterval: s.Retry.InitialInterval,
		MaxInterval:     s.Retry.MaxInterval,
	}
}

// DefaultProvider returns "backend:model" for the configured provider.
func (s Settings) DefaultProvider() string {
	bt, err := llm.ParseBackendType(s.LLM.Provider)
	if err != nil {
		return s.LLM.Provider
	}
	return bt.String() + ":" + ModelFor(bt)
}

// Configure applies the settings to a client builder. The model is only
// set when ref names none.
func (s Settings) Configure(ref model.ProviderRef, b *llm.Builder) {
	bt, err := llm.ParseBackendType(ref.Backend)
	if err != nil {
		return
	}
	if ref.Model == "" {
		b.Model(ModelFor(bt))
	}
	b.MaxTokens(s.LLM.MaxTokens).Temperature(s.LLM.Temperature).Timeout(s.LLM.Timeout)

	switch bt {
	case llm.BackendOpenAI:
		if s.LLM.OpenAIBaseURL != "" {
			b.BaseURL(s.LLM.OpenAIBaseURL)
		}
	case llm.BackendOllama:
		if s.LLM.OllamaHost != "" {
			b.BaseURL(ollamaURL(s.LLM.OllamaHost))
		}
	case llm.BackendBedrock:
		if s.LLM.AWSRegion != "" {
			b.Region(s.LLM.AWSRegion)
		}
	}
}

// ClientFactory returns a chain client factory that builds clients with
// these settings and the shared registry, logger and metrics.
func (s Settings) ClientFactory(reg *capability.Registry, log zerolog.Logger, m *metrics.Collector) chain.ClientFactory {
	return chain.BuilderFactory(func(ref model.ProviderRef, b *llm.Builder) {
		s.Configure(ref, b)
		b.Registry(reg).Logger(log).Metrics(m)
	})
}

// ollamaURL turns OLLAMA_HOST ("host:port" or a URL) into the OpenAI-compatible base URL.
func ollamaURL(host string) string {
	u := strings.TrimRight(host, "/")
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	bt, err := llm.ParseBackendType(provider)
	if err != nil {
		return "", err
	}
	if !bt.RequiresKey() {
		return "", nil
	}
	key := os.Getenv(bt.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", bt.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(bt llm.BackendType) string {
	if val := os.Getenv(modelEnv[bt]); val != "" {
		return val
	}
	return bt.DefaultModel()
}

// SupportedProviders returns the supported provider names in declaration order.
func SupportedProviders() []string {
	result := make([]string, 0, len(llm.BackendTypes))
	for _, bt := range llm.BackendTypes {
		result = append(result, bt.String())
	}
	return result
}
