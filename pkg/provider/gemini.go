package provider

import (
	"context"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

// Gemini is the ChatAdapter for Google Gemini. Tool traffic uses
// FunctionCall and FunctionResponse parts; the API carries no call ids, so
// short ids are synthesized for logging.
type Gemini struct {
	client       *genai.Client
	model        string
	systemPrompt string
	temperature  float64
	tools        ToolRunner
	env          tools.Env
	logger       zerolog.Logger
	conversation
}

// NewGemini creates a Gemini adapter from cfg.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client:       client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		tools:        cfg.Tools,
		env:          cfg.Env,
		logger:       cfg.Logger,
		conversation: newConversation(cfg.History),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// History returns the canonical transcript, tool frames excluded.
func (g *Gemini) History() []transcript.Turn { return g.snapshot() }

// SendMessage runs one full conversation turn including the tool loop.
func (g *Gemini) SendMessage(ctx context.Context, text string) (string, error) {
	contents := g.encodeHistory()
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	// Narration emitted alongside tool calls accumulates across turns so no
	// text is lost when the model keeps calling tools.
	var segments []string
	truncated := true

	for turn := 0; turn < maxToolTurns; turn++ {
		response, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.generateConfig())
		if err != nil {
			return "", err
		}

		content := candidateContent(response)
		if content == nil {
			return "", fmt.Errorf("no response candidates returned")
		}

		narration, calls := splitGeminiParts(content)
		if narration != "" {
			segments = append(segments, narration)
		}

		if len(calls) == 0 {
			truncated = false
			break
		}

		contents = append(contents, content)

		responseParts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			callID, _ := gonanoid.New(8)
			output := g.tools.Execute(ctx, g.env, call.Name, call.Args)
			g.logger.Debug().Str("tool", call.Name).Str("call_id", callID).Msg("Tool call handled")
			responseParts = append(responseParts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{
				"result": output,
			}))
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responseParts})
	}

	reply := finalizeReply(strings.Join(segments, "\n"), truncated)
	g.record(transcript.RoleUser, text)
	g.record(transcript.RoleModel, reply)
	return reply, nil
}

// Complete performs a one-shot, tool-free completion without touching the
// conversation.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", err
	}

	content := candidateContent(response)
	if content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}
	text, _ := splitGeminiParts(content)
	return text, nil
}

func (g *Gemini) generateConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if g.systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}
	if g.tools != nil {
		specs := g.tools.Specs()
		declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
		for _, spec := range specs {
			declarations = append(declarations, spec.Gemini())
		}
		if len(declarations) > 0 {
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
		}
	}
	return cfg
}

func (g *Gemini) encodeHistory() []*genai.Content {
	var contents []*genai.Content
	for _, turn := range g.turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == transcript.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text(), role))
	}
	return contents
}

func candidateContent(response *genai.GenerateContentResponse) *genai.Content {
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil
	}
	return response.Candidates[0].Content
}

func splitGeminiParts(content *genai.Content) (string, []*genai.FunctionCall) {
	text := ""
	var calls []*genai.FunctionCall
	for _, part := range content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return text, calls
}

var _ ChatAdapter = (*Gemini)(nil)
var _ Completer = (*Gemini)(nil)
