// Package provider adapts LLM chat APIs to one conversation interface. Each
// adapter owns the provider-native tool calling protocol and exposes only
// plain text turns to the rest of the system.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/schema"
	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

// maxToolTurns bounds the request/tool/response loop inside one message so a
// misbehaving model cannot spin forever.
const maxToolTurns = 8

// truncationNotice is appended to the reply when the tool loop hits its
// ceiling.
const truncationNotice = "[Error: Max tool turns reached]"

// ToolRunner is the slice of the tool registry the adapters need.
// *tools.Registry satisfies it.
type ToolRunner interface {
	Specs() []schema.Tool
	Execute(ctx context.Context, env tools.Env, name string, args map[string]interface{}) string
}

// ChatAdapter is a stateful conversation with one LLM provider. SendMessage
// runs the full tool loop and returns the final text reply; the transcript it
// reports never contains tool frames.
type ChatAdapter interface {
	SendMessage(ctx context.Context, text string) (string, error)
	History() []transcript.Turn
	Name() string
}

// Completer performs a one-shot completion with no tools and no effect on
// conversation state. Used for session recaps.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config describes one conversation's settings, shared by all adapters.
type Config struct {
	// Provider selects the adapter: "anthropic", "openai", "gemini", or
	// "ollama" (OpenAI-compatible local endpoint).
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Tools        ToolRunner
	Env          tools.Env
	// History seeds the conversation from a persisted transcript.
	History []transcript.Turn
	Logger  zerolog.Logger
}

// New builds the adapter for cfg.Provider. Construction problems yield a
// Disabled adapter rather than an error so a misconfigured campaign still
// answers, explaining what is wrong.
func New(ctx context.Context, cfg Config) ChatAdapter {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		if cfg.APIKey == "" {
			return NewDisabled("no Anthropic API key is configured")
		}
		return NewAnthropic(cfg)
	case "openai":
		if cfg.APIKey == "" {
			return NewDisabled("no OpenAI API key is configured")
		}
		return NewOpenAI(cfg)
	case "ollama":
		if cfg.BaseURL == "" {
			return NewDisabled("no Ollama base URL is configured")
		}
		return NewOpenAI(cfg)
	case "gemini":
		if cfg.APIKey == "" {
			return NewDisabled("no Gemini API key is configured")
		}
		adapter, err := NewGemini(ctx, cfg)
		if err != nil {
			return NewDisabled(fmt.Sprintf("Gemini client failed to initialize: %v", err))
		}
		return adapter
	default:
		return NewDisabled(fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

// Disabled is the adapter used when no real provider could be constructed.
// It answers every message with an explanation instead of failing the
// conversation pipeline.
type Disabled struct {
	reason string
}

// NewDisabled creates a Disabled adapter.
func NewDisabled(reason string) *Disabled {
	return &Disabled{reason: reason}
}

func (d *Disabled) Name() string { return "disabled" }

func (d *Disabled) SendMessage(_ context.Context, _ string) (string, error) {
	return "The facilitator is not available: " + d.reason, nil
}

func (d *Disabled) History() []transcript.Turn { return nil }

// conversation is the canonical-transcript bookkeeping shared by the real
// adapters.
type conversation struct {
	turns []transcript.Turn
}

func newConversation(history []transcript.Turn) conversation {
	return conversation{turns: transcript.Merge(history)}
}

func (c *conversation) record(role, text string) {
	c.turns = transcript.Append(c.turns, role, text)
}

func (c *conversation) snapshot() []transcript.Turn {
	out := make([]transcript.Turn, len(c.turns))
	for i, turn := range c.turns {
		out[i] = transcript.Turn{Role: turn.Role, Parts: append([]string(nil), turn.Parts...)}
	}
	return out
}

// finalizeReply applies the truncation notice when the tool loop ran out of
// turns before the model produced a closing reply.
func finalizeReply(text string, truncated bool) string {
	if !truncated {
		return text
	}
	if text == "" {
		return truncationNotice
	}
	return text + "\n\n" + truncationNotice
}
