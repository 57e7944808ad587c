// Package config defines the daemon configuration and its loader.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Config is the full meeple configuration.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram" mapstructure:"telegram"`
	Provider    ProviderConfig    `json:"provider" mapstructure:"provider"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`

	// DataDir holds campaigns, the channel registry, the access policy,
	// and logs. Defaults to ~/.meeple.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	CampaignsDir        string `json:"campaigns_dir" mapstructure:"campaigns_dir"`
	ChannelRegistryPath string `json:"channel_registry_path" mapstructure:"channel_registry_path"`
	AccessPolicyPath    string `json:"access_policy_path" mapstructure:"access_policy_path"`

	// SessionCapacity bounds how many campaigns stay open at once.
	SessionCapacity int `json:"session_capacity" mapstructure:"session_capacity"`
}

// TelegramConfig holds the Telegram bot settings.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// ProviderConfig selects the model backend. When Name is empty the first
// configured credential wins, checked in order: Gemini, Anthropic, OpenAI,
// Ollama.
type ProviderConfig struct {
	Name            string  `json:"name" mapstructure:"name"`
	AnthropicAPIKey string  `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string  `json:"openai_api_key" mapstructure:"openai_api_key"`
	GeminiAPIKey    string  `json:"gemini_api_key" mapstructure:"gemini_api_key"`
	OllamaBaseURL   string  `json:"ollama_base_url" mapstructure:"ollama_base_url"`
	Model           string  `json:"model" mapstructure:"model"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`

	// EmbeddingsModel powers recap search; it always runs on the OpenAI
	// embeddings endpoint and falls back to keyword search without a key.
	EmbeddingsModel string `json:"embeddings_model" mapstructure:"embeddings_model"`
}

// LoggingConfig mirrors internal/logger.Config.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// MaintenanceConfig controls background housekeeping.
type MaintenanceConfig struct {
	// BufferPurgeSchedule is a cron expression for dropping stale
	// context-buffer entries.
	BufferPurgeSchedule string `json:"buffer_purge_schedule" mapstructure:"buffer_purge_schedule"`
	BufferMaxAgeHours   int    `json:"buffer_max_age_hours" mapstructure:"buffer_max_age_hours"`
}

var knownProviders = []string{"anthropic", "openai", "gemini", "ollama"}

// DefaultConfig returns a config with default values. Paths that depend on
// DataDir are filled in by the loader.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Enabled: true},
		Provider: ProviderConfig{
			Temperature:     0.8,
			MaxTokens:       1024,
			EmbeddingsModel: "text-embedding-3-small",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Maintenance: MaintenanceConfig{
			BufferPurgeSchedule: "0 */6 * * *",
			BufferMaxAgeHours:   24,
		},
		SessionCapacity: 64,
	}
}

// Resolve picks the provider, credential, and base URL the engine should
// use. A forced Name always wins; otherwise the first configured credential
// decides.
func (p ProviderConfig) Resolve() (name, apiKey, baseURL string) {
	switch strings.ToLower(p.Name) {
	case "anthropic":
		return "anthropic", p.AnthropicAPIKey, ""
	case "openai":
		return "openai", p.OpenAIAPIKey, ""
	case "gemini":
		return "gemini", p.GeminiAPIKey, ""
	case "ollama":
		return "ollama", "", p.OllamaBaseURL
	}

	switch {
	case p.GeminiAPIKey != "":
		return "gemini", p.GeminiAPIKey, ""
	case p.AnthropicAPIKey != "":
		return "anthropic", p.AnthropicAPIKey, ""
	case p.OpenAIAPIKey != "":
		return "openai", p.OpenAIAPIKey, ""
	case p.OllamaBaseURL != "":
		return "ollama", "", p.OllamaBaseURL
	}
	return "", "", ""
}

// ResolveModel returns the configured model, or the default for the
// resolved provider.
func (p ProviderConfig) ResolveModel() string {
	if p.Model != "" {
		return p.Model
	}
	name, _, _ := p.Resolve()
	switch name {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "openai":
		return "gpt-4o"
	case "gemini":
		return "gemini-2.0-flash"
	case "ollama":
		return "llama3.1"
	}
	return ""
}

// String returns an indented JSON rendering with credentials masked.
func (c *Config) String() string {
	masked := *c
	masked.Telegram.BotToken = mask(c.Telegram.BotToken)
	masked.Provider.AnthropicAPIKey = mask(c.Provider.AnthropicAPIKey)
	masked.Provider.OpenAIAPIKey = mask(c.Provider.OpenAIAPIKey)
	masked.Provider.GeminiAPIKey = mask(c.Provider.GeminiAPIKey)

	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Validate checks the configuration for problems that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Provider.Name != "" {
		valid := false
		for _, p := range knownProviders {
			if strings.EqualFold(c.Provider.Name, p) {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unknown provider %q (must be one of: %s)", c.Provider.Name, strings.Join(knownProviders, ", "))
		}
	}

	name, apiKey, baseURL := c.Provider.Resolve()
	if name == "" {
		return fmt.Errorf("no model credentials configured: set an API key or an Ollama base URL")
	}
	if name == "ollama" {
		if baseURL == "" {
			return fmt.Errorf("provider ollama requires ollama_base_url")
		}
	} else if apiKey == "" {
		return fmt.Errorf("provider %s is selected but its API key is empty", name)
	}

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("temperature %v is out of range [0, 2]", c.Provider.Temperature)
	}
	if c.Provider.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram is enabled but bot_token is empty")
	}

	if c.SessionCapacity < 0 {
		return fmt.Errorf("session_capacity cannot be negative")
	}

	return nil
}
