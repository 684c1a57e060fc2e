// DeepSeek backend using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - No embeddings endpoint

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekBackend creates a DeepSeek backend.
func NewDeepSeekBackend(cfg BackendConfig) *OpenAIBackend {
	return newOpenAICompatible("deepseek", cfg, deepseekBaseURL, false)
}
