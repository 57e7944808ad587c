package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Provider.AnthropicAPIKey = "sk-ant-test"
	cfg.Telegram.BotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
	return cfg
}

func TestResolve(t *testing.T) {
	t.Run("should prefer a forced provider", func(t *testing.T) {
		p := ProviderConfig{
			Name:            "openai",
			OpenAIAPIKey:    "sk-openai",
			GeminiAPIKey:    "AIza-gemini",
			AnthropicAPIKey: "sk-ant-key",
		}

		name, key, baseURL := p.Resolve()
		assert.Equal(t, "openai", name)
		assert.Equal(t, "sk-openai", key)
		assert.Empty(t, baseURL)
	})

	t.Run("should auto-detect in gemini, anthropic, openai, ollama order", func(t *testing.T) {
		p := ProviderConfig{
			AnthropicAPIKey: "sk-ant-key",
			GeminiAPIKey:    "AIza-gemini",
		}
		name, key, _ := p.Resolve()
		assert.Equal(t, "gemini", name)
		assert.Equal(t, "AIza-gemini", key)

		p.GeminiAPIKey = ""
		name, key, _ = p.Resolve()
		assert.Equal(t, "anthropic", name)
		assert.Equal(t, "sk-ant-key", key)

		p.AnthropicAPIKey = ""
		p.OllamaBaseURL = "http://localhost:11434/v1"
		name, _, baseURL := p.Resolve()
		assert.Equal(t, "ollama", name)
		assert.Equal(t, "http://localhost:11434/v1", baseURL)
	})

	t.Run("should resolve nothing without credentials", func(t *testing.T) {
		name, _, _ := ProviderConfig{}.Resolve()
		assert.Empty(t, name)
	})

	t.Run("should pick the provider default model", func(t *testing.T) {
		p := ProviderConfig{AnthropicAPIKey: "sk-ant-key"}
		assert.Equal(t, "claude-sonnet-4-5", p.ResolveModel())

		p.Model = "claude-opus-4"
		assert.Equal(t, "claude-opus-4", p.ResolveModel())
	})
}

func TestValidate(t *testing.T) {
	t.Run("should accept a complete config", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("should reject unknown forced providers", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.Name = "skynet"
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject missing credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.AnthropicAPIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject a forced provider without its key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.Name = "openai"
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject temperatures out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.Temperature = 2.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("should require a bot token when telegram is enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram.BotToken = ""
		assert.Error(t, cfg.Validate())

		cfg.Telegram.Enabled = false
		assert.NoError(t, cfg.Validate())
	})
}

func TestString(t *testing.T) {
	t.Run("should mask credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.AnthropicAPIKey = "sk-ant-abcdefghijklmnop"

		out := cfg.String()
		assert.NotContains(t, out, "abcdefghijklmnop")
		assert.Contains(t, out, "sk-a...")
	})
}
