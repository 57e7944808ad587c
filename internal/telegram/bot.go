// Package telegram is the Telegram surface of the facilitator: it turns bot
// updates into engine messages and player commands, and sends replies back.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/halden/meeple/internal/metrics"
	"github.com/halden/meeple/pkg/access"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/engine"
	"github.com/halden/meeple/pkg/namegen"
)

// maxMessageLength is Telegram's hard cap on message text.
const maxMessageLength = 4096

// Bot runs the Telegram long-poll loop.
type Bot struct {
	api      *tgbotapi.BotAPI
	engine   *engine.Engine
	access   *access.Controller
	channels *campaign.Registry
	metrics  *metrics.Metrics
	names    *namegen.Generator
	commands *Commands
	logger   zerolog.Logger

	updates tgbotapi.UpdatesChannel
	done    chan struct{}
}

// Deps carries everything the bot needs beyond its token.
type Deps struct {
	Engine   *engine.Engine
	Access   *access.Controller
	Channels *campaign.Registry
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// New authenticates against the Bot API and builds the Bot.
func New(token string, deps Deps) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	b := &Bot{
		api:      api,
		engine:   deps.Engine,
		access:   deps.Access,
		channels: deps.Channels,
		metrics:  deps.Metrics,
		names:    namegen.New(),
		logger:   deps.Logger.With().Str("component", "telegram").Logger(),
		done:     make(chan struct{}),
	}
	b.commands = newCommands(b)

	b.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")
	return b, nil
}

// Start begins long polling. It returns immediately; updates are handled on
// a background goroutine until Stop.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	b.updates = b.api.GetUpdatesChan(u)

	go b.run()
	b.logger.Info().Msg("Telegram bot started")
}

// Stop halts the update loop.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	close(b.done)
	b.logger.Info().Msg("Telegram bot stopped")
}

func (b *Bot) run() {
	for {
		select {
		case <-b.done:
			return
		case update, ok := <-b.updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				if b.metrics != nil {
					b.metrics.TelegramErrorsTotal.Inc()
				}
				b.logger.Error().Err(err).Int("update_id", update.UpdateID).Msg("Failed to handle update")
			}
		}
	}
}

// Send delivers text to a chat, splitting it under Telegram's length cap.
func (b *Bot) Send(chatID int64, text string, replyTo int) error {
	for i, chunk := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		if b.metrics != nil {
			b.metrics.TelegramSentTotal.Inc()
		}
	}
	return nil
}

// SendDirect delivers a private message to a user, implementing
// tools.Notifier for the send_dm tool.
func (b *Bot) SendDirect(_ context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	// A DM only works once the user has opened a chat with the bot.
	if err := b.Send(chatID, text, 0); err != nil {
		return fmt.Errorf("failed to send private message (the player may need to message the bot first): %w", err)
	}
	return nil
}

// splitMessage cuts text into chunks Telegram accepts, preferring newline
// boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxMessageLength {
		cut := strings.LastIndex(text[:maxMessageLength], "\n")
		if cut < maxMessageLength/2 {
			cut = maxMessageLength
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
