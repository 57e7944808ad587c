package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads and writes the config file.
type Loader struct {
	configPath string
}

// NewLoader creates a Loader. An empty path means ~/.meeple/meeple.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file, applies environment overrides, and fills in
// derived paths. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		v.SetEnvPrefix("MEEPLE")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvCredentials(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".meeple")
	}
	if cfg.CampaignsDir == "" {
		cfg.CampaignsDir = filepath.Join(cfg.DataDir, "campaigns")
	}
	if cfg.ChannelRegistryPath == "" {
		cfg.ChannelRegistryPath = filepath.Join(cfg.DataDir, "channels.json")
	}
	if cfg.AccessPolicyPath == "" {
		cfg.AccessPolicyPath = filepath.Join(cfg.DataDir, "access.json")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "meeple.log")
	}

	return cfg, nil
}

// applyEnvCredentials lets the standard vendor variables supply keys the
// file omits, so a bare environment still works.
func applyEnvCredentials(cfg *Config) {
	if cfg.Provider.AnthropicAPIKey == "" {
		cfg.Provider.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Provider.OpenAIAPIKey == "" {
		cfg.Provider.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Provider.GeminiAPIKey == "" {
		cfg.Provider.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

// Save writes the configuration to the config file.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("telegram", cfg.Telegram)
	v.Set("provider", cfg.Provider)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("maintenance", cfg.Maintenance)
	v.Set("data_dir", cfg.DataDir)
	v.Set("campaigns_dir", cfg.CampaignsDir)
	v.Set("channel_registry_path", cfg.ChannelRegistryPath)
	v.Set("access_policy_path", cfg.AccessPolicyPath)
	v.Set("session_capacity", cfg.SessionCapacity)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the path the loader reads from.
func (l *Loader) ConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".meeple", "meeple.json"), nil
}

// Load is a convenience wrapper around NewLoader(...).Load().
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
