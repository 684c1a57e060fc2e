package llm

import (
	"testing"

	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendType(t *testing.T) {
	tests := map[string]BackendType{
		"openai":      BackendOpenAI,
		"GPT":         BackendOpenAI,
		"claude":      BackendAnthropic,
		"deepseek":    BackendDeepSeek,
		"google":      BackendGemini,
		"ollama":      BackendOllama,
		"aws-bedrock": BackendBedrock,
		" bedrock ":   BackendBedrock,
	}
	for input, want := range tests {
		got, err := ParseBackendType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseBackendType("mystery")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestBackendTypeRoundTrip(t *testing.T) {
	for _, bt := range BackendTypes {
		parsed, err := ParseBackendType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
		assert.NotEmpty(t, bt.DefaultModel())
	}
}

func TestBuildRequiresKey(t *testing.T) {
	_, err := NewBuilder(BackendOpenAI).Build()
	assert.ErrorIs(t, err, model.ErrConfiguration)

	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err = BackendAnthropic.FromEnv()
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestBuildFromEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-env")
	client, err := BackendDeepSeek.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "deepseek:"+ModelDeepSeekV32, client.Name())
}

func TestBuildOllamaNeedsNoKey(t *testing.T) {
	client, err := BackendOllama.Model("llava").Build()
	require.NoError(t, err)
	assert.Equal(t, "ollama:llava", client.Name())
	assert.Equal(t, BackendOllama, client.BackendType())
}

func TestBuildDefaults(t *testing.T) {
	client, err := BackendOpenAI.APIKey("sk-test")
	require.NoError(t, err)
	assert.Equal(t, ModelOpenAIGPT52, client.Model())
	assert.Equal(t, DefaultMaxTokens, client.maxTokens)
	assert.Equal(t, DefaultTemperature, client.temperature)
	assert.Equal(t, DefaultTimeout, client.timeout)
}
