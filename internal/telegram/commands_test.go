package telegram

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCommandRegistration(t *testing.T) {
	t.Run("should register the full command set", func(t *testing.T) {
		c := newCommands(&Bot{logger: zerolog.Nop()})

		for _, name := range []string{"iam", "name", "startsession", "wrapup", "forget", "admin", "help"} {
			assert.Contains(t, c.handlers, name)
		}
	})
}

func TestListFormatting(t *testing.T) {
	t.Run("should render empty allow lists as everyone", func(t *testing.T) {
		assert.Equal(t, "(everyone)", listOrAll(nil))
		assert.Equal(t, "a, b", listOrAll([]string{"a", "b"}))
	})

	t.Run("should render empty lists as none", func(t *testing.T) {
		assert.Equal(t, "(none)", listOrNone(nil))
		assert.Equal(t, "42", listOrNone([]string{"42"}))
	})
}

func TestHelp(t *testing.T) {
	t.Run("should document every registered command", func(t *testing.T) {
		c := newCommands(&Bot{logger: zerolog.Nop()})

		text, err := c.help(nil, nil)
		assert.NoError(t, err)
		for name := range c.handlers {
			assert.Contains(t, text, "!"+name)
		}
	})
}
