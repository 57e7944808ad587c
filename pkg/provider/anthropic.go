package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

// Anthropic is the ChatAdapter for Claude models. Tool results travel back as
// tool_result blocks inside a user message, per the Messages API protocol.
type Anthropic struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
	tools        ToolRunner
	env          tools.Env
	logger       zerolog.Logger
	conversation
}

// NewAnthropic creates an Anthropic adapter from cfg.
func NewAnthropic(cfg Config) *Anthropic {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		tools:        cfg.Tools,
		env:          cfg.Env,
		logger:       cfg.Logger,
		conversation: newConversation(cfg.History),
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// History returns the canonical transcript, tool frames excluded.
func (a *Anthropic) History() []transcript.Turn { return a.snapshot() }

// SendMessage runs one full conversation turn including the tool loop.
func (a *Anthropic) SendMessage(ctx context.Context, text string) (string, error) {
	messages := a.encodeHistory()
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))

	// Narration emitted alongside tool calls accumulates across turns so no
	// text is lost when the model keeps calling tools.
	var segments []string
	truncated := true

	for turn := 0; turn < maxToolTurns; turn++ {
		response, err := a.call(ctx, messages)
		if err != nil {
			return "", err
		}

		content, calls := splitAnthropicContent(response)
		if content != "" {
			segments = append(segments, content)
		}

		if len(calls) == 0 {
			truncated = false
			break
		}

		messages = append(messages, response.ToParam())

		var results []anthropic.ContentBlockParamUnion
		for _, call := range calls {
			output := a.tools.Execute(ctx, a.env, call.name, call.args)
			a.logger.Debug().Str("tool", call.name).Str("call_id", call.id).Msg("Tool call handled")
			results = append(results, anthropic.NewToolResultBlock(call.id, output, false))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	reply := finalizeReply(strings.Join(segments, "\n"), truncated)
	a.record(transcript.RoleUser, text)
	a.record(transcript.RoleModel, reply)
	return reply, nil
}

// Complete performs a one-shot, tool-free completion without touching the
// conversation.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	content, _ := splitAnthropicContent(response)
	return content, nil
}

func (a *Anthropic) call(ctx context.Context, messages []anthropic.MessageParam) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		Messages:  messages,
		MaxTokens: int64(a.maxTokens),
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
	}
	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}
	if a.tools != nil {
		params.Tools = a.encodeTools()
	}
	return a.client.Messages.New(ctx, params)
}

func (a *Anthropic) encodeHistory() []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, turn := range a.turns {
		if turn.Role == transcript.RoleUser {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text())))
		} else {
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(turn.Text()),
				},
			})
		}
	}
	return messages
}

func (a *Anthropic) encodeTools() []anthropic.ToolUnionParam {
	specs := a.tools.Specs()
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		properties, required := spec.AnthropicInput()
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}})
	}
	return out
}

type anthropicCall struct {
	id   string
	name string
	args map[string]interface{}
}

func splitAnthropicContent(response *anthropic.Message) (string, []anthropicCall) {
	content := ""
	var calls []anthropicCall

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				args = map[string]interface{}{}
			}
			calls = append(calls, anthropicCall{id: b.ID, name: b.Name, args: args})
		}
	}
	return content, calls
}

var _ ChatAdapter = (*Anthropic)(nil)
var _ Completer = (*Anthropic)(nil)
