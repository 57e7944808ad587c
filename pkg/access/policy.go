// Package access enforces who may talk to the facilitator and where. The
// policy is a JSON file of allow-lists that reloads automatically when edited.
package access

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Policy is the on-disk allow-list shape. Empty lists allow everyone and
// everywhere.
type Policy struct {
	AllowedUsers    []string `json:"allowed_users,omitempty"`
	AllowedChannels []string `json:"allowed_channels,omitempty"`
	BlockedUsers    []string `json:"blocked_users,omitempty"`
	Admins          []string `json:"admins,omitempty"`
}

// Controller loads a Policy from disk and answers authorization checks. It
// watches the file and reloads on change.
type Controller struct {
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	timer   *time.Timer

	mu     sync.RWMutex
	policy Policy
}

// NewController loads the policy at path and begins watching it. A missing
// file yields an open policy that denies nobody.
func NewController(path string, logger zerolog.Logger) (*Controller, error) {
	c := &Controller{
		path:   path,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if err := c.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save and
	// the watch would die with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}
	c.watcher = watcher

	go c.run()
	return c, nil
}

// Stop stops the policy watcher.
func (c *Controller) Stop() error {
	close(c.stopCh)
	return c.watcher.Close()
}

func (c *Controller) run() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				c.scheduleReload()
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error().Err(err).Msg("Policy watcher error")

		case <-c.stopCh:
			return
		}
	}
}

func (c *Controller) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(200*time.Millisecond, func() {
		if err := c.reload(); err != nil {
			c.logger.Error().Err(err).Msg("Policy reload failed, keeping previous policy")
		}
	})
}

func (c *Controller) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.policy = Policy{}
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read access policy: %w", err)
	}

	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("failed to parse access policy: %w", err)
	}

	c.mu.Lock()
	c.policy = policy
	c.mu.Unlock()

	c.logger.Info().
		Int("allowed_users", len(policy.AllowedUsers)).
		Int("allowed_channels", len(policy.AllowedChannels)).
		Msg("Access policy loaded")
	return nil
}

// AllowUser appends a user to the allow-list and persists the policy.
func (c *Controller) AllowUser(userID string) error {
	return c.update(func(p *Policy) {
		p.AllowedUsers = appendUnique(p.AllowedUsers, userID)
		p.BlockedUsers = remove(p.BlockedUsers, userID)
	})
}

// DenyUser adds a user to the block-list and persists the policy.
func (c *Controller) DenyUser(userID string) error {
	return c.update(func(p *Policy) {
		p.BlockedUsers = appendUnique(p.BlockedUsers, userID)
		p.AllowedUsers = remove(p.AllowedUsers, userID)
	})
}

func (c *Controller) update(apply func(*Policy)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	apply(&c.policy)

	data, err := json.MarshalIndent(c.policy, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal access policy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write access policy: %w", err)
	}
	return nil
}

// UserAllowed reports whether a user may interact with the facilitator.
func (c *Controller) UserAllowed(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if contains(c.policy.BlockedUsers, userID) {
		return false
	}
	if len(c.policy.AllowedUsers) == 0 {
		return true
	}
	return contains(c.policy.AllowedUsers, userID) || contains(c.policy.Admins, userID)
}

// ChannelAllowed reports whether the facilitator listens in a channel.
func (c *Controller) ChannelAllowed(channelKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.policy.AllowedChannels) == 0 {
		return true
	}
	return contains(c.policy.AllowedChannels, channelKey)
}

// IsAdmin reports whether a user may run administrative commands.
func (c *Controller) IsAdmin(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return contains(c.policy.Admins, userID)
}

// Snapshot returns a copy of the current policy.
func (c *Controller) Snapshot() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Policy{
		AllowedUsers:    append([]string(nil), c.policy.AllowedUsers...),
		AllowedChannels: append([]string(nil), c.policy.AllowedChannels...),
		BlockedUsers:    append([]string(nil), c.policy.BlockedUsers...),
		Admins:          append([]string(nil), c.policy.Admins...),
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
