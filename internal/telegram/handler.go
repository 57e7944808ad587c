package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/halden/meeple/pkg/engine"
)

// processTimeout bounds one model exchange, including tool turns.
const processTimeout = 5 * time.Minute

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}
	if b.metrics != nil {
		b.metrics.TelegramReceivedTotal.Inc()
	}

	text := msg.Text
	if text == "" {
		// Media arrives with its caption; that is all the facilitator can
		// read, and it only ever lands in the ambient buffer.
		text = msg.Caption
	}
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "!") {
		return b.commands.dispatch(msg, text)
	}

	return b.relay(msg, text, false)
}

// relay forwards a chat message to the engine and sends back the reply.
func (b *Bot) relay(msg *tgbotapi.Message, text string, debug bool) error {
	group := msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()
	tagged := !group || b.isTagged(msg)

	if tagged {
		text = b.stripMention(text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	message := engine.Message{
		Platform:  "telegram",
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		UserName:  displayName(msg.From),
		Text:      text,
		Tagged:    tagged,
		Debug:     debug,
	}

	var reply string
	var err error
	if tagged {
		err = b.withTyping(msg.Chat.ID, func() error {
			reply, err = b.engine.Process(ctx, message)
			return err
		})
	} else {
		reply, err = b.engine.Process(ctx, message)
	}
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	return b.Send(msg.Chat.ID, reply, msg.MessageID)
}

// isTagged reports whether a group message addresses the facilitator: an
// @mention or a reply to one of its messages.
func (b *Bot) isTagged(msg *tgbotapi.Message) bool {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == b.api.Self.ID {
		return true
	}
	for _, entity := range msg.Entities {
		if entity.Type != "mention" {
			continue
		}
		end := entity.Offset + entity.Length
		if end > len(msg.Text) {
			continue
		}
		if msg.Text[entity.Offset:end] == "@"+b.api.Self.UserName {
			return true
		}
	}
	return false
}

func (b *Bot) stripMention(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+b.api.Self.UserName, ""))
}

func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
