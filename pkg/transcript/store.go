package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const snapshotName = "chat_history.json"

// Store persists canonical transcripts as JSON snapshots, one file per
// directory. Writes for the same directory are serialized.
type Store struct {
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
	logger     zerolog.Logger
}

// NewStore creates a transcript Store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{writeLocks: make(map[string]*sync.Mutex), logger: logger}
}

func (s *Store) lockFor(dir string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.writeLocks[dir]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[dir] = lock
	return lock
}

// SnapshotPath returns the snapshot file path under dir.
func (s *Store) SnapshotPath(dir string) string {
	return filepath.Join(dir, snapshotName)
}

// Load reads the persisted transcript from dir. A missing file yields an
// empty transcript, not an error.
func (s *Store) Load(dir string) ([]Turn, error) {
	path := s.SnapshotPath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Turn{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warn().Str("path", path).Err(err).Msg("Corrupt transcript snapshot, starting fresh")
		return []Turn{}, nil
	}

	return Merge(turns), nil
}

// Save writes the transcript snapshot atomically, pruning empty fields from
// the serialized records first.
func (s *Store) Save(dir string, turns []Turn) error {
	lock := s.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	raw, err := json.Marshal(Merge(turns))
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	// Round-trip through generic JSON so pruning sees plain maps and slices.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to normalize transcript: %w", err)
	}

	data, err := json.MarshalIndent(PruneEmpty(generic), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	path := s.SnapshotPath(dir)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace transcript: %w", err)
	}

	s.logger.Debug().Str("dir", dir).Int("turns", len(turns)).Msg("Transcript saved")
	return nil
}

// UndoLast removes the final model turn and, if one precedes it, the matching
// user turn. It returns a short preview of the removed text.
func (s *Store) UndoLast(dir string) (string, error) {
	turns, err := s.Load(dir)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("history is empty")
	}

	removed := turns[len(turns)-1]
	if removed.Role != RoleModel {
		return "", fmt.Errorf("the last turn is not a model reply")
	}
	turns = turns[:len(turns)-1]
	if len(turns) > 0 && turns[len(turns)-1].Role == RoleUser {
		turns = turns[:len(turns)-1]
	}

	if err := s.Save(dir, turns); err != nil {
		return "", err
	}

	preview := removed.Text()
	if runes := []rune(preview); len(runes) > 50 {
		preview = string(runes[:50]) + "..."
	}
	return preview, nil
}

// LastModified reports when the snapshot was last written. Missing snapshots
// report a far-distant past so gap detection treats them as a fresh start.
func (s *Store) LastModified(dir string) time.Time {
	info, err := os.Stat(s.SnapshotPath(dir))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
