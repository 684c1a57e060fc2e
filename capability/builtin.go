package capability

// BuiltinSource is the provenance name of the built-in layer.
const BuiltinSource = "builtin"

func chatModel(name string, vision, tools bool, contextWindow, maxOutput int) Record {
	return Record{
		Name:            name,
		Completion:      true,
		Chat:            true,
		Vision:          vision,
		ToolUse:         tools,
		Streaming:       true,
		ContextWindow:   contextWindow,
		MaxOutputTokens: maxOutput,
	}
}

func embedModel(name string, contextWindow int) Record {
	return Record{Name: name, Embeddings: true, ContextWindow: contextWindow}
}

// builtinRecords is the lowest-precedence layer. Bedrock entries use the
// vendor.model form so cross-region profiles resolve through their base model.
func builtinRecords() []Record {
	return []Record{
		// Bedrock direct models
		chatModel("anthropic.claude-3-5-sonnet-20241022-v2:0", true, true, 200_000, 8192),
		chatModel("us.anthropic.claude-sonnet-4-0-v1:0", true, true, 200_000, 8192),
		chatModel("anthropic.claude-3-opus-20240229-v1:0", true, true, 200_000, 8192),
		chatModel("anthropic.claude-3-5-sonnet-20240620-v1:0", true, true, 200_000, 8192),
		chatModel("anthropic.claude-3-sonnet-20240229-v1:0", true, true, 200_000, 4096),
		chatModel("anthropic.claude-3-haiku-20240307-v1:0", true, true, 200_000, 4096),
		chatModel("meta.llama3-2-90b-instruct-v1:0", true, false, 128_000, 4096),
		chatModel("meta.llama3-2-11b-instruct-v1:0", true, false, 128_000, 4096),
		chatModel("meta.llama3-2-3b-instruct-v1:0", false, false, 128_000, 2048),
		chatModel("meta.llama3-2-1b-instruct-v1:0", false, false, 128_000, 2048),
		chatModel("meta.llama3-1-70b-instruct-v1:0", false, false, 128_000, 4096),
		chatModel("meta.llama3-1-8b-instruct-v1:0", false, false, 128_000, 2048),
		chatModel("amazon.titan-text-premier-v1:0", false, false, 32_000, 8192),
		chatModel("amazon.titan-text-express-v1", false, false, 8_000, 8192),
		chatModel("amazon.titan-text-lite-v1", false, false, 8_000, 4096),
		embedModel("amazon.titan-embed-text-v2:0", 8_192),
		embedModel("amazon.titan-embed-text-v1", 8_192),
		chatModel("cohere.command-r-plus-v1:0", false, true, 128_000, 4096),
		chatModel("cohere.command-r-v1:0", false, true, 128_000, 4096),
		embedModel("cohere.embed-english-v3", 512),
		embedModel("cohere.embed-multilingual-v3", 512),
		chatModel("mistral.mistral-large-2407-v1:0", false, true, 128_000, 8192),
		chatModel("mistral.mistral-small-2402-v1:0", false, false, 128_000, 8192),

		// Bedrock models reachable only through inference profiles
		chatModel("anthropic.claude-sonnet-4-20250514-v1:0", true, true, 200_000, 8192),
		chatModel("anthropic.claude-sonnet-4-5-20250929-v1:0", true, true, 200_000, 8192),
		chatModel("mistral.pixtral-large-2502-v1:0", true, true, 128_000, 8192),
		embedModel("cohere.embed-v4:0", 128_000),

		// OpenAI
		chatModel("gpt-5.2", true, true, 400_000, 128_000),
		chatModel("gpt-5.2-codex", true, true, 400_000, 128_000),
		chatModel("gpt-5", true, true, 400_000, 128_000),
		chatModel("gpt-4o", true, true, 128_000, 16_384),
		chatModel("gpt-4o-mini", true, true, 128_000, 16_384),
		chatModel("o1", true, true, 200_000, 100_000),
		chatModel("o3-mini", false, true, 200_000, 100_000),
		embedModel("text-embedding-3-small", 8_191),
		embedModel("text-embedding-3-large", 8_191),
		embedModel("text-embedding-ada-002", 8_191),

		// Anthropic
		chatModel("claude-opus-4-5-20251101", true, true, 200_000, 64_000),
		chatModel("claude-sonnet-4-5-20250929", true, true, 200_000, 64_000),
		chatModel("claude-sonnet-4-5", true, true, 200_000, 64_000),
		chatModel("claude-sonnet-4-20250514", true, true, 200_000, 64_000),
		chatModel("claude-haiku-4-20250514", true, true, 200_000, 32_000),
		chatModel("claude-3-5-haiku-20241022", false, true, 200_000, 8192),

		// Gemini
		chatModel("gemini-3-pro", true, true, 1_000_000, 65_536),
		chatModel("gemini-3-flash", true, true, 1_000_000, 65_536),
		chatModel("gemini-3-deep-think", true, false, 1_000_000, 65_536),
		chatModel("gemini-2.5-pro", true, true, 1_000_000, 65_536),
		chatModel("gemini-2.5-flash", true, true, 1_000_000, 65_536),
		chatModel("gemini-2.0-flash", true, true, 1_000_000, 8192),
		chatModel("gemini-2.0-pro", true, true, 2_000_000, 8192),
		embedModel("text-embedding-004", 2_048),
		embedModel("gemini-embedding-001", 2_048),

		// DeepSeek
		chatModel("deepseek-chat", false, true, 64_000, 8192),
		chatModel("deepseek-reasoner", false, false, 64_000, 8192),
		chatModel("deepseek-v3.2", false, true, 128_000, 8192),
		chatModel("deepseek-v3.1", false, true, 128_000, 8192),
		chatModel("deepseek-r1", false, false, 128_000, 8192),

		// Ollama
		chatModel("llama3.2", false, true, 128_000, 4096),
		chatModel("llama3.1", false, true, 128_000, 4096),
		chatModel("mistral", false, true, 32_000, 4096),
		chatModel("qwen2.5", false, true, 32_000, 4096),
		chatModel("llava", true, false, 4_096, 4096),
		embedModel("nomic-embed-text", 8_192),
		embedModel("mxbai-embed-large", 512),
	}
}

var builtinIndex = indexRecords(builtinRecords())

func indexRecords(records []Record) map[string]Record {
	idx := make(map[string]Record, len(records))
	for _, r := range records {
		idx[r.Name] = r
	}
	return idx
}
