// Ollama backend using Ollama's OpenAI-compatible endpoint.
//
// Information Hiding:
// - Local server, no credentials required
// - Chat, completion and embeddings all go through /v1

package llm

const ollamaBaseURL = "http://localhost:11434/v1"

// NewOllamaBackend creates an Ollama backend. cfg.BaseURL overrides the local default.
func NewOllamaBackend(cfg BackendConfig) *OpenAIBackend {
	if cfg.APIKey == "" {
		// The compatibility layer requires a bearer token but ignores its value.
		cfg.APIKey = "ollama"
	}
	return newOpenAICompatible("ollama", cfg, ollamaBaseURL, true)
}
