package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

// OpenAI is the ChatAdapter for OpenAI chat completions. With a base URL it
// also drives OpenAI-compatible local endpoints such as Ollama. Tool results
// travel back as role "tool" messages keyed by call id.
type OpenAI struct {
	client       openai.Client
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
	tools        ToolRunner
	env          tools.Env
	logger       zerolog.Logger
	conversation
}

// NewOpenAI creates an OpenAI adapter from cfg.
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		tools:        cfg.Tools,
		env:          cfg.Env,
		logger:       cfg.Logger,
		conversation: newConversation(cfg.History),
	}
}

func (o *OpenAI) Name() string { return "openai" }

// History returns the canonical transcript, tool frames excluded.
func (o *OpenAI) History() []transcript.Turn { return o.snapshot() }

// SendMessage runs one full conversation turn including the tool loop.
func (o *OpenAI) SendMessage(ctx context.Context, text string) (string, error) {
	messages := o.encodeHistory()
	messages = append(messages, openai.UserMessage(text))

	// Narration emitted alongside tool calls accumulates across turns so no
	// text is lost when the model keeps calling tools.
	var segments []string
	truncated := true

	for turn := 0; turn < maxToolTurns; turn++ {
		response, err := o.call(ctx, messages)
		if err != nil {
			return "", err
		}
		if len(response.Choices) == 0 {
			return "", fmt.Errorf("no response choices returned")
		}

		message := response.Choices[0].Message
		if message.Content != "" {
			segments = append(segments, message.Content)
		}

		if len(message.ToolCalls) == 0 {
			truncated = false
			break
		}

		messages = append(messages, message.ToParam())

		for _, call := range message.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = map[string]interface{}{}
			}
			output := o.tools.Execute(ctx, o.env, call.Function.Name, args)
			o.logger.Debug().Str("tool", call.Function.Name).Str("call_id", call.ID).Msg("Tool call handled")
			messages = append(messages, openai.ToolMessage(output, call.ID))
		}
	}

	reply := finalizeReply(strings.Join(segments, "\n"), truncated)
	o.record(transcript.RoleUser, text)
	o.record(transcript.RoleModel, reply)
	return reply, nil
}

// Complete performs a one-shot, tool-free completion without touching the
// conversation.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}

	response, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return response.Choices[0].Message.Content, nil
}

func (o *OpenAI) call(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (*openai.ChatCompletion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.maxTokens))
	}
	if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}
	if o.tools != nil {
		params.Tools = o.encodeTools()
	}
	return o.client.Chat.Completions.New(ctx, params)
}

func (o *OpenAI) encodeHistory() []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if o.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.systemPrompt))
	}
	for _, turn := range o.turns {
		if turn.Role == transcript.RoleUser {
			messages = append(messages, openai.UserMessage(turn.Text()))
		} else {
			messages = append(messages, openai.AssistantMessage(turn.Text()))
		}
	}
	return messages
}

func (o *OpenAI) encodeTools() []openai.ChatCompletionToolParam {
	specs := o.tools.Specs()
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.JSONSchema()),
			},
		})
	}
	return out
}

var _ ChatAdapter = (*OpenAI)(nil)
var _ Completer = (*OpenAI)(nil)
