package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halden/meeple/pkg/schema"
	"github.com/halden/meeple/pkg/tools"
	"github.com/halden/meeple/pkg/transcript"
)

type recordingRunner struct {
	mu     sync.Mutex
	called []string
}

func (r *recordingRunner) Specs() []schema.Tool {
	return []schema.Tool{{
		Name:        "roll_dice",
		Description: "Roll dice.",
		Params:      []schema.Param{{Name: "expression", Type: "string"}},
	}}
}

func (r *recordingRunner) Execute(_ context.Context, _ tools.Env, name string, _ map[string]interface{}) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called = append(r.called, name)
	if name != "roll_dice" {
		return fmt.Sprintf("Error: Tool %s not found.", name)
	}
	return "You rolled 14."
}

// completionScript replays canned chat completion responses in order and keeps
// the raw request bodies for inspection. The last response repeats once the
// script runs out.
type completionScript struct {
	mu        sync.Mutex
	responses []string
	requests  []string
}

func (s *completionScript) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, string(body))
	response := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(response))
}

func (s *completionScript) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *completionScript) request(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func textResponse(content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
}

func toolCallResponse(content, name, arguments string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":%q,
		"tool_calls":[{"id":"call_1","type":"function","function":{"name":%q,"arguments":%q}}]}}]}`,
		content, name, arguments)
}

func newScriptedOpenAI(t *testing.T, runner ToolRunner, responses ...string) (*OpenAI, *completionScript) {
	t.Helper()
	script := &completionScript{responses: responses}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", script.serve)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter := NewOpenAI(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o",
		Tools:   runner,
		Logger:  zerolog.Nop(),
	})
	return adapter, script
}

func TestOpenAIToolLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("should accumulate narration across tool turns", func(t *testing.T) {
		runner := &recordingRunner{}
		adapter, _ := newScriptedOpenAI(t, runner,
			toolCallResponse("The goblin snarls as you lunge.", "roll_dice", `{"expression":"1d20"}`),
			textResponse("You hit for 14 damage."),
		)

		reply, err := adapter.SendMessage(ctx, "I attack the goblin")
		require.NoError(t, err)

		assert.Equal(t, "The goblin snarls as you lunge.\nYou hit for 14 damage.", reply)
		assert.Equal(t, []string{"roll_dice"}, runner.called)

		history := adapter.History()
		require.Len(t, history, 2)
		assert.Equal(t, transcript.RoleUser, history[0].Role)
		assert.Equal(t, reply, history[1].Text())
	})

	t.Run("should feed tool output back as a tool message", func(t *testing.T) {
		runner := &recordingRunner{}
		adapter, script := newScriptedOpenAI(t, runner,
			toolCallResponse("", "roll_dice", `{"expression":"1d20"}`),
			textResponse("A clean hit."),
		)

		_, err := adapter.SendMessage(ctx, "I attack")
		require.NoError(t, err)

		require.Equal(t, 2, script.requestCount())
		assert.Contains(t, script.request(0), `"roll_dice"`)

		second := script.request(1)
		assert.Contains(t, second, `"role":"tool"`)
		assert.Contains(t, second, `"call_1"`)
		assert.Contains(t, second, "You rolled 14.")
	})

	t.Run("should report unknown tools back to the model", func(t *testing.T) {
		runner := &recordingRunner{}
		adapter, script := newScriptedOpenAI(t, runner,
			toolCallResponse("", "teleport", `{}`),
			textResponse("I cannot do that."),
		)

		reply, err := adapter.SendMessage(ctx, "teleport us out")
		require.NoError(t, err)

		assert.Equal(t, "I cannot do that.", reply)
		assert.Contains(t, script.request(1), "Error: Tool teleport not found.")
	})

	t.Run("should stop at the tool turn ceiling", func(t *testing.T) {
		runner := &recordingRunner{}
		adapter, script := newScriptedOpenAI(t, runner,
			toolCallResponse("", "roll_dice", `{"expression":"1d20"}`),
		)

		reply, err := adapter.SendMessage(ctx, "keep rolling")
		require.NoError(t, err)

		assert.Equal(t, truncationNotice, reply)
		assert.Equal(t, maxToolTurns, script.requestCount())
		assert.Len(t, runner.called, maxToolTurns)
	})
}
