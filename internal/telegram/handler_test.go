package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	t.Run("should prefer the username", func(t *testing.T) {
		user := &tgbotapi.User{UserName: "ada", FirstName: "Ada", LastName: "L"}
		assert.Equal(t, "ada", displayName(user))
	})

	t.Run("should fall back to first and last name", func(t *testing.T) {
		user := &tgbotapi.User{FirstName: "Ada", LastName: "Lovelace"}
		assert.Equal(t, "Ada Lovelace", displayName(user))
	})

	t.Run("should handle a bare first name", func(t *testing.T) {
		user := &tgbotapi.User{FirstName: "Ada"}
		assert.Equal(t, "Ada", displayName(user))
	})
}
