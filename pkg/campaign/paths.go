// Package campaign manages per-campaign state: the directory layout, the
// channel-to-campaign registry, and the SQLite store holding structured game
// state.
package campaign

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName rejects campaign names that would escape the campaigns
// directory or collide with path separators.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid campaign name %q: use letters, digits, '-' and '_'", name)
	}
	return nil
}

// Paths resolves the on-disk layout of a single campaign.
type Paths struct {
	Root string
}

// NewPaths returns the layout for a named campaign under baseDir.
func NewPaths(baseDir, name string) (Paths, error) {
	if err := ValidateName(name); err != nil {
		return Paths{}, err
	}
	return Paths{Root: filepath.Join(baseDir, name)}, nil
}

// Ensure creates the campaign directory tree.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Root, p.SessionsDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create campaign directory: %w", err)
		}
	}
	return nil
}

// Exists reports whether the campaign directory is present.
func (p Paths) Exists() bool {
	info, err := os.Stat(p.Root)
	return err == nil && info.IsDir()
}

// DatabasePath is the campaign's SQLite database file.
func (p Paths) DatabasePath() string { return filepath.Join(p.Root, "campaign.db") }

// SessionsDir holds per-session journal files.
func (p Paths) SessionsDir() string { return filepath.Join(p.Root, "sessions") }

// WorldInfoPath is the free-form world notes file shown to the facilitator.
func (p Paths) WorldInfoPath() string { return filepath.Join(p.Root, "world_info.md") }

// SecretsLogPath is the facilitator-only notes file, never shown to players.
func (p Paths) SecretsLogPath() string { return filepath.Join(p.Root, "secrets_log.md") }

// SystemPromptPath is the optional per-campaign system prompt override.
func (p Paths) SystemPromptPath() string { return filepath.Join(p.Root, "system_prompt.md") }

// ArchivePath is the searchable index of past session summaries.
func (p Paths) ArchivePath() string { return filepath.Join(p.Root, "archive.db") }

// List returns the campaign names present under baseDir.
func List(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read campaigns directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && namePattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
