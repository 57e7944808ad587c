package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/archive"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/dice"
	"github.com/halden/meeple/pkg/journal"
	"github.com/halden/meeple/pkg/namegen"
	"github.com/halden/meeple/pkg/provider"
	"github.com/halden/meeple/pkg/rules"
	"github.com/halden/meeple/pkg/tools"
)

// defaultSystemPrompt is the facilitator persona used when a campaign does
// not carry its own system_prompt.md.
const defaultSystemPrompt = `You are the game facilitator for a tabletop roleplaying campaign played over chat.
You narrate the world, portray every NPC, adjudicate rules fairly, and keep the story moving.

Ground rules:
- Use your tools for anything mechanical: dice, inventory, quests, combat tracking, session logs.
- Ask players to roll their own important checks with request_player_roll.
- Record notable events with log_event so the campaign log stays useful.
- Keep secrets in log_secret or send them privately with send_dm; never reveal them in the open channel.
- Stay in the fiction. Keep replies vivid but short enough for a chat room.`

// Session is one live campaign conversation with all its backing state.
type Session struct {
	Campaign   string
	Paths      campaign.Paths
	Store      *campaign.Store
	Journal    *journal.Journal
	Archive    *archive.Archive
	Adapter    provider.ChatAdapter
	summarizer journal.Summarizer
	logger     zerolog.Logger
}

// newSession opens a campaign's stores and builds its provider adapter,
// seeding the conversation from the persisted transcript.
func (e *Engine) newSession(ctx context.Context, name string) (*Session, error) {
	paths, err := campaign.NewPaths(e.cfg.BaseDir, name)
	if err != nil {
		return nil, err
	}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("campaign", name).Logger()

	store, err := campaign.OpenStore(paths.DatabasePath(), logger)
	if err != nil {
		return nil, err
	}

	arch, err := archive.Open(paths.ArchivePath(), e.cfg.Embeddings, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	jrnl := journal.New(journal.Config{
		SessionsDir:   paths.SessionsDir(),
		SecretsPath:   paths.SecretsLogPath(),
		WorldInfoPath: paths.WorldInfoPath(),
		Logger:        logger,
	})

	s := &Session{
		Campaign: name,
		Paths:    paths,
		Store:    store,
		Journal:  jrnl,
		Archive:  arch,
		logger:   logger,
	}

	registry, err := tools.NewRegistry(tools.Catalog(tools.Deps{
		Dice:       dice.New(),
		Names:      namegen.New(),
		Store:      store,
		Journal:    jrnl,
		Rules:      rules.NewClient(logger),
		Archive:    arch,
		Summarizer: s, // summarization goes through the session's own model
		Notifier:   e.cfg.Notifier,
		Logger:     logger,
	}), logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	history, err := e.transcripts.Load(paths.Root)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load transcript, starting fresh")
		history = nil
	}

	adapter := provider.New(ctx, provider.Config{
		Provider:     e.cfg.Provider,
		APIKey:       e.cfg.APIKey,
		BaseURL:      e.cfg.BaseURL,
		Model:        e.cfg.Model,
		SystemPrompt: s.systemPrompt(),
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
		Tools:        registry,
		Env:          tools.Env{Campaign: name},
		History:      history,
		Logger:       logger,
	})
	s.Adapter = adapter

	logger.Info().Str("provider", adapter.Name()).Msg("Campaign session opened")
	return s, nil
}

// systemPrompt returns the campaign's prompt override when present, the
// default persona otherwise.
func (s *Session) systemPrompt() string {
	data, err := os.ReadFile(s.Paths.SystemPromptPath())
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return defaultSystemPrompt
	}
	return string(data)
}

// Summarize implements journal.Summarizer using the session's own model via
// a one-shot completion, so wrap-ups never disturb the conversation state.
func (s *Session) Summarize(ctx context.Context, text string) (string, error) {
	completer, ok := s.Adapter.(provider.Completer)
	if !ok {
		return "", fmt.Errorf("the configured provider cannot summarize")
	}

	prompt := "Summarize this tabletop RPG session log as a recap of 3 to 5 sentences. " +
		"Cover what the party did, what changed in the world, and any unresolved threads. " +
		"Write in past tense.\n\n" + text
	return completer.Complete(ctx, prompt)
}

// Close releases the session's database handles.
func (s *Session) Close() {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close campaign store")
		}
	}
	if s.Archive != nil {
		if err := s.Archive.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close archive")
		}
	}
}

var _ journal.Summarizer = (*Session)(nil)
