package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	t.Run("should return defaults when the file is missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meeple.json")

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, 64, cfg.SessionCapacity)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("should fill derived paths from the data dir", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "meeple.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "`+dir+`"}`), 0o644))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "campaigns"), cfg.CampaignsDir)
		assert.Equal(t, filepath.Join(dir, "channels.json"), cfg.ChannelRegistryPath)
		assert.Equal(t, filepath.Join(dir, "access.json"), cfg.AccessPolicyPath)
		assert.Equal(t, filepath.Join(dir, "meeple.log"), cfg.Logging.File)
	})

	t.Run("should round-trip through save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meeple.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Provider.Name = "anthropic"
		cfg.Provider.AnthropicAPIKey = "sk-ant-test"
		cfg.Telegram.BotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", loaded.Provider.Name)
		assert.Equal(t, "sk-ant-test", loaded.Provider.AnthropicAPIKey)
		assert.Equal(t, cfg.Telegram.BotToken, loaded.Telegram.BotToken)
	})

	t.Run("should take vendor env keys as a fallback", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "meeple.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-from-env", cfg.Provider.AnthropicAPIKey)
	})

	t.Run("should reject malformed config files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meeple.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}
