package campaign

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ChannelKey identifies a chat channel across platforms, e.g.
// "telegram:123456" or "cli:local".
func ChannelKey(platform, channelID string) string {
	return platform + ":" + channelID
}

// Registry maps chat channels to campaign names, persisted as a JSON file.
type Registry struct {
	path     string
	mu       sync.RWMutex
	bindings map[string]string
	logger   zerolog.Logger
}

// NewRegistry loads the registry from path, starting empty when the file does
// not exist yet.
func NewRegistry(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{path: path, bindings: make(map[string]string), logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read channel registry: %w", err)
	}

	if err := json.Unmarshal(data, &r.bindings); err != nil {
		return nil, fmt.Errorf("failed to parse channel registry: %w", err)
	}
	return r, nil
}

// Bind associates a channel with a campaign, replacing any prior binding.
func (r *Registry) Bind(platform, channelID, campaignName string) error {
	if err := ValidateName(campaignName); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[ChannelKey(platform, channelID)] = campaignName
	if err := r.save(); err != nil {
		return err
	}

	r.logger.Info().
		Str("channel", ChannelKey(platform, channelID)).
		Str("campaign", campaignName).
		Msg("Channel bound to campaign")
	return nil
}

// Unbind removes a channel binding. Unbinding an unknown channel is not an
// error.
func (r *Registry) Unbind(platform, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bindings, ChannelKey(platform, channelID))
	return r.save()
}

// Lookup returns the campaign bound to a channel, or false when unbound.
func (r *Registry) Lookup(platform, channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.bindings[ChannelKey(platform, channelID)]
	return name, ok
}

// Bindings returns a sorted snapshot of all channel bindings.
func (r *Registry) Bindings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.bindings))
	for k, v := range r.bindings {
		out[k] = v
	}
	return out
}

// Channels returns the channel keys bound to the given campaign.
func (r *Registry) Channels(campaignName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for k, v := range r.bindings {
		if v == campaignName {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.bindings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal channel registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write channel registry: %w", err)
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace channel registry: %w", err)
	}
	return nil
}
