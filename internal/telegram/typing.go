package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// typingInterval refreshes the indicator before Telegram's ~5s expiry.
const typingInterval = 4 * time.Second

// withTyping keeps the "typing..." indicator alive while fn runs. Model
// turns with tool calls can take a while; the indicator tells players the
// facilitator is thinking rather than gone.
func (b *Bot) withTyping(chatID int64, fn func() error) error {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		b.sendTyping(chatID)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.sendTyping(chatID)
			}
		}
	}()

	err := fn()
	close(stop)
	<-done
	return err
}

func (b *Bot) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to send typing action")
	}
}
