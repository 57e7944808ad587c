// Package engine is the conversation core: it routes chat messages to the
// right campaign, frames them with identity and ambient context, drives the
// provider adapter, and persists the transcript.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/access"
	"github.com/halden/meeple/pkg/archive"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/provider"
	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

// Fixed replies for conditions the model never sees.
const (
	msgUnbound     = "This channel isn't bound to a campaign yet. An admin can bind one with the bind command."
	msgDenied      = "You don't have access to this campaign. Ask an admin to allow you."
	msgRateLimited = "The facilitator needs a short break: the model is rate limited right now. Try again in a minute."
	msgOverloaded  = "The model is overloaded at the moment. Give it a little while and try again."
	msgFailed      = "Something went wrong talking to the model. Please try again."
	msgEmptyReply  = "[The facilitator has nothing to add.]"
)

// sessionGap is how long a quiet spell must last before the facilitator is
// told to welcome the players back.
const sessionGap = 4 * time.Hour

// maxSendRetries is how many times a transient provider failure is retried
// after the initial attempt.
const maxSendRetries = 3

// retryBaseDelay doubles on each retry.
const retryBaseDelay = 2 * time.Second

// Config holds engine-wide settings. Provider fields apply to every
// campaign; per-campaign variation comes from the campaign's own files.
type Config struct {
	BaseDir         string
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxTokens       int
	SessionCapacity int
	Embeddings      archive.EmbeddingProvider
	Notifier        tools.Notifier
}

// Metrics receives processing outcomes. Implementations must be safe for
// concurrent use; a nil Metrics disables recording.
type Metrics interface {
	RecordMessage(campaign, outcome string, elapsed time.Duration)
}

// Message is one inbound chat message, platform-agnostic.
type Message struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	Text      string
	// Tagged marks messages addressed to the facilitator. Untagged channel
	// chatter is buffered as ambient context instead of being answered.
	Tagged bool
	// Debug surfaces verbose tool output in replies.
	Debug bool
}

// Engine routes messages between chat platforms and campaign sessions.
type Engine struct {
	cfg         Config
	channels    *campaign.Registry
	access      *access.Controller
	transcripts *transcript.Store
	sessions    *sessionRegistry
	metrics     Metrics
	logger      zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates an Engine.
func New(cfg Config, channels *campaign.Registry, ac *access.Controller, metrics Metrics, logger zerolog.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		channels:    channels,
		access:      ac,
		transcripts: transcript.NewStore(logger),
		metrics:     metrics,
		logger:      logger,
		sleep:       sleepCtx,
	}
	e.sessions = newSessionRegistry(cfg.SessionCapacity, e.newSession, logger)
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Close releases all open campaign sessions.
func (e *Engine) Close() {
	e.sessions.Close()
}

// Process handles one inbound message and returns the reply text. An empty
// reply means the message produced no visible response (buffered chatter or
// a denied user).
func (e *Engine) Process(ctx context.Context, msg Message) (string, error) {
	start := time.Now()
	reply, outcome, err := e.process(ctx, msg)
	if e.metrics != nil {
		name, _ := e.channels.Lookup(msg.Platform, msg.ChannelID)
		e.metrics.RecordMessage(name, outcome, time.Since(start))
	}
	return reply, err
}

func (e *Engine) process(ctx context.Context, msg Message) (string, string, error) {
	name, bound := e.channels.Lookup(msg.Platform, msg.ChannelID)
	if !bound {
		if !msg.Tagged {
			return "", "unbound", nil
		}
		return msgUnbound, "unbound", nil
	}

	channelKey := campaign.ChannelKey(msg.Platform, msg.ChannelID)
	if !e.access.UserAllowed(msg.UserID) || !e.access.ChannelAllowed(channelKey) {
		e.logger.Debug().Str("user", msg.UserID).Str("channel", channelKey).Msg("Message from unauthorized source rejected")
		if !msg.Tagged {
			// Passive chatter from blocked users is dropped silently.
			return "", "denied", nil
		}
		return msgDenied, "denied", nil
	}

	session, err := e.sessions.Get(ctx, name)
	if err != nil {
		return "", "failed", fmt.Errorf("failed to open campaign %q: %w", name, err)
	}

	if !msg.Tagged {
		if err := session.Store.AppendBuffer(msg.UserName, msg.Text); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to buffer untagged message")
		}
		return "", "buffered", nil
	}

	character, err := session.Store.CharacterFor(msg.UserID)
	if err != nil {
		return "", "failed", fmt.Errorf("failed to resolve speaker: %w", err)
	}

	text := e.composeInput(session, msg, character)

	sendCtx := tools.WithIdentity(ctx, tools.Identity{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Character: character,
	})
	if msg.Debug {
		sendCtx = tools.WithDebug(sendCtx)
	}

	reply, err := e.sendWithRetry(sendCtx, session.Adapter, text)
	if err != nil {
		outcome := "failed"
		failure := msgFailed
		switch {
		case provider.IsRateLimited(err):
			outcome, failure = "rate_limited", msgRateLimited
		case provider.IsOverloaded(err):
			outcome, failure = "overloaded", msgOverloaded
		}
		e.logger.Error().Str("campaign", name).Err(err).Msg("Provider call failed")
		return failure, outcome, nil
	}

	// Persistence failures must not eat the reply the players are waiting
	// for.
	if err := e.transcripts.Save(session.Paths.Root, session.Adapter.History()); err != nil {
		e.logger.Error().Str("campaign", name).Err(err).Msg("Failed to persist transcript")
	}

	if strings.TrimSpace(reply) == "" {
		reply = msgEmptyReply
	}
	return reply, "ok", nil
}

// composeInput builds the text the model sees: setup instructions while the
// wizard is unfinished, a gap note after long silences, buffered channel
// chatter, and the speaker's identity prefix.
func (e *Engine) composeInput(session *Session, msg Message, character string) string {
	prefixed := identityPrefix(msg, character)

	body := prefixed
	if entries, err := session.Store.DrainBuffer(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to drain context buffer")
	} else if len(entries) > 0 {
		var b strings.Builder
		b.WriteString("[Background Context - Untagged Conversation]:\n")
		for _, entry := range entries {
			fmt.Fprintf(&b, "%s: %s\n", entry.Author, entry.Content)
		}
		b.WriteString("\n[Direct Interaction]:\n")
		b.WriteString(prefixed)
		body = b.String()
	}

	var framing string

	stage, err := session.Store.WizardStage()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read wizard stage")
	} else {
		framing += wizardInstructions(stage)
	}

	if last := e.transcripts.LastModified(session.Paths.Root); !last.IsZero() {
		if gap := time.Since(last); gap >= sessionGap {
			framing += fmt.Sprintf(
				"[System note: about %d hours have passed since the last exchange. Welcome the players back and briefly recall where things left off.]\n\n",
				int(gap.Hours()),
			)
		}
	}

	return framing + body
}

// identityPrefix tags the message with who is speaking, preferring the
// claimed character over the platform username.
func identityPrefix(msg Message, character string) string {
	if character != "" {
		return fmt.Sprintf("(Character: %s): %s", character, msg.Text)
	}
	name := msg.UserName
	if name == "" {
		name = msg.UserID
	}
	return fmt.Sprintf("(User: %s): %s", name, msg.Text)
}

// sendWithRetry calls the adapter, retrying transient failures with doubling
// delays. Permanent errors surface immediately.
func (e *Engine) sendWithRetry(ctx context.Context, adapter provider.ChatAdapter, text string) (string, error) {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		if attempt > 0 {
			e.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Retrying provider call")
			if err := e.sleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}

		reply, err := adapter.SendMessage(ctx, text)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !provider.IsTransient(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("provider unavailable after %d attempts: %w", maxSendRetries+1, lastErr)
}

// Forget removes the last exchange from a channel's campaign and reopens the
// session from the trimmed transcript. It returns a preview of the removed
// reply.
func (e *Engine) Forget(platform, channelID string) (string, error) {
	name, bound := e.channels.Lookup(platform, channelID)
	if !bound {
		return "", fmt.Errorf("channel is not bound to a campaign")
	}

	paths, err := campaign.NewPaths(e.cfg.BaseDir, name)
	if err != nil {
		return "", err
	}

	preview, err := e.transcripts.UndoLast(paths.Root)
	if err != nil {
		return "", err
	}

	e.sessions.Drop(name)
	return preview, nil
}

// SessionFor returns the live session for a campaign, opening it if needed.
// Callers outside message flow (commands, the play REPL) use this for direct
// state access.
func (e *Engine) SessionFor(ctx context.Context, name string) (*Session, error) {
	return e.sessions.Get(ctx, name)
}

// PurgeStaleBuffers drops context-buffer entries older than maxAge across
// all open sessions and reports the total removed.
func (e *Engine) PurgeStaleBuffers(maxAge time.Duration) int {
	total := 0
	for _, name := range e.sessions.Campaigns() {
		session, err := e.sessions.Get(context.Background(), name)
		if err != nil {
			continue
		}
		n, err := session.Store.PurgeStaleBuffer(maxAge)
		if err != nil {
			e.logger.Warn().Str("campaign", name).Err(err).Msg("Failed to purge context buffer")
			continue
		}
		total += n
	}
	return total
}
