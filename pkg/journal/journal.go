// Package journal manages a campaign's written record: per-session event
// logs, facilitator-only secrets, and the world info document.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var sessionFilePattern = regexp.MustCompile(`^session_(\d{3})\.md$`)

// Summarizer condenses a session log into a short recap. The conversation
// engine provides an LLM-backed implementation.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Journal reads and writes a single campaign's log files.
type Journal struct {
	sessionsDir   string
	secretsPath   string
	worldInfoPath string
	logger        zerolog.Logger
	now           func() time.Time
}

// Config locates the journal's files.
type Config struct {
	SessionsDir   string
	SecretsPath   string
	WorldInfoPath string
	Logger        zerolog.Logger
}

// New creates a Journal. The sessions directory is created on first write.
func New(cfg Config) *Journal {
	return &Journal{
		sessionsDir:   cfg.SessionsDir,
		secretsPath:   cfg.SecretsPath,
		worldInfoPath: cfg.WorldInfoPath,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Sessions returns the session numbers present, in ascending order.
func (j *Journal) Sessions() ([]int, error) {
	entries, err := os.ReadDir(j.sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var numbers []int
	for _, entry := range entries {
		m := sessionFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// CurrentSession returns the highest session number, or 0 when none exist.
func (j *Journal) CurrentSession() (int, error) {
	numbers, err := j.Sessions()
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	return numbers[len(numbers)-1], nil
}

func (j *Journal) sessionPath(n int) string {
	return filepath.Join(j.sessionsDir, fmt.Sprintf("session_%03d.md", n))
}

// StartSession rotates to a fresh session log and returns its number.
func (j *Journal) StartSession() (int, error) {
	if err := os.MkdirAll(j.sessionsDir, 0o700); err != nil {
		return 0, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	current, err := j.CurrentSession()
	if err != nil {
		return 0, err
	}
	next := current + 1

	header := fmt.Sprintf("# Session %d\n\nStarted: %s\n\n## Events\n\n", next, j.now().Format("2006-01-02 15:04"))
	if err := os.WriteFile(j.sessionPath(next), []byte(header), 0o600); err != nil {
		return 0, fmt.Errorf("failed to create session log: %w", err)
	}

	j.logger.Info().Int("session", next).Msg("Session started")
	return next, nil
}

// LogEvent appends a timestamped entry to the current session log, starting
// session 1 implicitly when no session exists yet.
func (j *Journal) LogEvent(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("event text is required")
	}

	current, err := j.CurrentSession()
	if err != nil {
		return err
	}
	if current == 0 {
		if current, err = j.StartSession(); err != nil {
			return err
		}
	}

	entry := fmt.Sprintf("- [%s] %s\n", j.now().Format("15:04"), strings.TrimSpace(text))
	return appendFile(j.sessionPath(current), entry)
}

// ReadSession returns the log for the given session, or the current one when
// n is 0.
func (j *Journal) ReadSession(n int) (string, error) {
	if n == 0 {
		current, err := j.CurrentSession()
		if err != nil {
			return "", err
		}
		if current == 0 {
			return "", fmt.Errorf("no sessions recorded yet")
		}
		n = current
	}

	data, err := os.ReadFile(j.sessionPath(n))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no log for session %d", n)
		}
		return "", fmt.Errorf("failed to read session log: %w", err)
	}
	return string(data), nil
}

// LogSecret appends a facilitator-only note. Secrets never reach players.
func (j *Journal) LogSecret(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("secret text is required")
	}
	entry := fmt.Sprintf("- [%s] %s\n", j.now().Format("2006-01-02 15:04"), strings.TrimSpace(text))
	return appendFile(j.secretsPath, entry)
}

// ReadSecrets returns the facilitator-only notes, empty when none exist.
func (j *Journal) ReadSecrets() (string, error) {
	data, err := os.ReadFile(j.secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secrets log: %w", err)
	}
	return string(data), nil
}

// AppendWorldInfo adds a section to the world info document.
func (j *Journal) AppendWorldInfo(heading, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("world info text is required")
	}

	var entry string
	if strings.TrimSpace(heading) != "" {
		entry = fmt.Sprintf("\n## %s\n\n%s\n", strings.TrimSpace(heading), strings.TrimSpace(text))
	} else {
		entry = "\n" + strings.TrimSpace(text) + "\n"
	}
	return appendFile(j.worldInfoPath, entry)
}

// ReadWorldInfo returns the world info document, empty when none exists.
func (j *Journal) ReadWorldInfo() (string, error) {
	data, err := os.ReadFile(j.worldInfoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read world info: %w", err)
	}
	return string(data), nil
}

// CompactSession summarizes the current session log, writes the recap into
// the log file, and returns the recap with its session number for archiving.
func (j *Journal) CompactSession(ctx context.Context, summarizer Summarizer) (int, string, error) {
	current, err := j.CurrentSession()
	if err != nil {
		return 0, "", err
	}
	if current == 0 {
		return 0, "", fmt.Errorf("no session to compact")
	}

	content, err := j.ReadSession(current)
	if err != nil {
		return 0, "", err
	}
	if strings.Contains(content, "## Recap\n") {
		return 0, "", fmt.Errorf("session %d is already compacted", current)
	}

	summary, err := summarizer.Summarize(ctx, content)
	if err != nil {
		return 0, "", fmt.Errorf("failed to summarize session: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return 0, "", fmt.Errorf("summarizer returned an empty recap")
	}

	recap := fmt.Sprintf("\n## Recap\n\n%s\n\nEnded: %s\n", summary, j.now().Format("2006-01-02 15:04"))
	if err := appendFile(j.sessionPath(current), recap); err != nil {
		return 0, "", err
	}

	j.logger.Info().Int("session", current).Msg("Session compacted")
	return current, summary, nil
}

func appendFile(path, entry string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}
