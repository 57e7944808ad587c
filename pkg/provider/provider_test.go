package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halden/meeple/pkg/transcript"
)

func TestDisabled(t *testing.T) {
	t.Run("should answer with the reason instead of failing", func(t *testing.T) {
		adapter := NewDisabled("no Anthropic API key is configured")

		reply, err := adapter.SendMessage(context.Background(), "hello?")
		require.NoError(t, err)
		assert.Equal(t, "The facilitator is not available: no Anthropic API key is configured", reply)
		assert.Empty(t, adapter.History())
	})
}

func TestNewFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("should disable providers missing credentials", func(t *testing.T) {
		for _, name := range []string{"anthropic", "openai", "gemini"} {
			adapter := New(ctx, Config{Provider: name})
			assert.Equal(t, "disabled", adapter.Name(), "provider %s", name)
		}
	})

	t.Run("should disable ollama without a base URL", func(t *testing.T) {
		adapter := New(ctx, Config{Provider: "ollama"})
		assert.Equal(t, "disabled", adapter.Name())
	})

	t.Run("should disable unknown providers", func(t *testing.T) {
		adapter := New(ctx, Config{Provider: "watson"})
		reply, err := adapter.SendMessage(ctx, "hi")
		require.NoError(t, err)
		assert.Contains(t, reply, `unknown provider "watson"`)
	})

	t.Run("should build real adapters when configured", func(t *testing.T) {
		assert.Equal(t, "anthropic", New(ctx, Config{Provider: "anthropic", APIKey: "k"}).Name())
		assert.Equal(t, "openai", New(ctx, Config{Provider: "openai", APIKey: "k"}).Name())
		assert.Equal(t, "openai", New(ctx, Config{Provider: "ollama", BaseURL: "http://localhost:11434/v1"}).Name())
	})
}

func TestConversation(t *testing.T) {
	t.Run("should merge seeded history", func(t *testing.T) {
		c := newConversation([]transcript.Turn{
			{Role: transcript.RoleUser, Parts: []string{"a"}},
			{Role: transcript.RoleUser, Parts: []string{"b"}},
		})
		require.Len(t, c.turns, 1)
	})

	t.Run("should snapshot without aliasing", func(t *testing.T) {
		c := newConversation(nil)
		c.record(transcript.RoleUser, "question")
		c.record(transcript.RoleModel, "answer")

		snap := c.snapshot()
		snap[0].Parts[0] = "mutated"
		assert.Equal(t, "question", c.turns[0].Parts[0])
	})
}

func TestFinalizeReply(t *testing.T) {
	t.Run("should pass clean replies through", func(t *testing.T) {
		assert.Equal(t, "done", finalizeReply("done", false))
	})

	t.Run("should append the truncation notice", func(t *testing.T) {
		assert.Equal(t, "partial\n\n[Error: Max tool turns reached]", finalizeReply("partial", true))
	})

	t.Run("should stand alone when no text was produced", func(t *testing.T) {
		assert.Equal(t, "[Error: Max tool turns reached]", finalizeReply("", true))
	})
}

func TestErrorClassification(t *testing.T) {
	t.Run("should spot rate limiting", func(t *testing.T) {
		assert.True(t, IsRateLimited(fmt.Errorf("got status 429 Too Many Requests")))
		assert.True(t, IsRateLimited(fmt.Errorf("RESOURCE_EXHAUSTED: quota exceeded")))
		assert.False(t, IsRateLimited(fmt.Errorf("invalid api key")))
	})

	t.Run("should spot overload", func(t *testing.T) {
		assert.True(t, IsOverloaded(fmt.Errorf("503 Service Unavailable")))
		assert.True(t, IsOverloaded(fmt.Errorf("Overloaded")))
		assert.False(t, IsOverloaded(fmt.Errorf("400 bad request")))
	})

	t.Run("should classify transient errors", func(t *testing.T) {
		for _, msg := range []string{
			"429 too many requests",
			"502 bad gateway",
			"read tcp: connection reset by peer",
			"context deadline exceeded (Client.Timeout exceeded)",
		} {
			assert.True(t, IsTransient(fmt.Errorf("%s", msg)), msg)
		}
		assert.False(t, IsTransient(fmt.Errorf("401 unauthorized")))
		assert.False(t, IsTransient(nil))
	})
}
