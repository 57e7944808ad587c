package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halden/meeple/pkg/schema"
)

func echoTool() Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "echo",
			Description: "Echo the input back.",
			Params: []schema.Param{
				{Name: "text", Type: "string"},
				{Name: "repeat", Type: "integer", Default: 1},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			out := ""
			for i := 0; i < int(args["repeat"].(float64)); i++ {
				out += args["text"].(string)
			}
			return out, nil
		},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("should reject duplicate names", func(t *testing.T) {
		_, err := NewRegistry([]Definition{echoTool(), echoTool()}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should reject missing handlers", func(t *testing.T) {
		_, err := NewRegistry([]Definition{{Schema: schema.Tool{Name: "x"}}}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should expose specs in name order", func(t *testing.T) {
		noop := func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			return "", nil
		}
		reg, err := NewRegistry([]Definition{
			{Schema: schema.Tool{Name: "zebra"}, Handler: noop},
			{Schema: schema.Tool{Name: "aardvark"}, Handler: noop},
		}, zerolog.Nop())
		require.NoError(t, err)

		specs := reg.Specs()
		require.Len(t, specs, 2)
		assert.Equal(t, "aardvark", specs[0].Name)
		assert.Equal(t, "zebra", specs[1].Name)
	})
}

func TestExecute(t *testing.T) {
	reg, err := NewRegistry([]Definition{echoTool()}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("should run a valid call", func(t *testing.T) {
		out := reg.Execute(ctx, Env{}, "echo", map[string]interface{}{
			"text": "hi", "repeat": float64(2),
		})
		assert.Equal(t, "hihi", out)
	})

	t.Run("should apply defaults for missing optional args", func(t *testing.T) {
		out := reg.Execute(ctx, Env{}, "echo", map[string]interface{}{"text": "once"})
		assert.Equal(t, "once", out)
	})

	t.Run("should report unknown tools in fixed form", func(t *testing.T) {
		out := reg.Execute(ctx, Env{}, "teleport", nil)
		assert.Equal(t, "Error: Tool teleport not found.", out)
	})

	t.Run("should reject missing required args", func(t *testing.T) {
		out := reg.Execute(ctx, Env{}, "echo", map[string]interface{}{})
		assert.Contains(t, out, "Error: Invalid arguments for echo")
	})

	t.Run("should reject wrongly typed args", func(t *testing.T) {
		out := reg.Execute(ctx, Env{}, "echo", map[string]interface{}{
			"text": float64(5),
		})
		assert.Contains(t, out, "Error: Invalid arguments")
	})
}

func TestExecuteFailureModes(t *testing.T) {
	ctx := context.Background()

	t.Run("should turn handler errors into error text", func(t *testing.T) {
		def := Definition{
			Schema: schema.Tool{Name: "fail"},
			Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
				return "", fmt.Errorf("the vault is sealed")
			},
		}
		reg, err := NewRegistry([]Definition{def}, zerolog.Nop())
		require.NoError(t, err)

		out := reg.Execute(ctx, Env{}, "fail", nil)
		assert.Equal(t, "Error: the vault is sealed", out)
	})

	t.Run("should recover panics", func(t *testing.T) {
		def := Definition{
			Schema: schema.Tool{Name: "boom"},
			Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
				panic("kaboom")
			},
		}
		reg, err := NewRegistry([]Definition{def}, zerolog.Nop())
		require.NoError(t, err)

		out := reg.Execute(ctx, Env{}, "boom", nil)
		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "kaboom")
	})

	t.Run("should time out stuck handlers", func(t *testing.T) {
		def := Definition{
			Schema: schema.Tool{Name: "hang"},
			Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
		}
		reg, err := NewRegistry([]Definition{def}, zerolog.Nop())
		require.NoError(t, err)
		reg.timeout = 50 * time.Millisecond

		out := reg.Execute(ctx, Env{}, "hang", nil)
		assert.Contains(t, out, "Error:")
	})

	t.Run("should pass the env through", func(t *testing.T) {
		def := Definition{
			Schema: schema.Tool{Name: "whoami"},
			Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
				return env.Campaign + "/" + env.UserID, nil
			},
		}
		reg, err := NewRegistry([]Definition{def}, zerolog.Nop())
		require.NoError(t, err)

		out := reg.Execute(ctx, Env{Campaign: "shadowfell", UserID: "u1"}, "whoami", nil)
		assert.Equal(t, "shadowfell/u1", out)
	})

	t.Run("should adopt the speaker identity carried on the context", func(t *testing.T) {
		def := Definition{
			Schema: schema.Tool{Name: "speaker"},
			Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
				return env.UserID + "/" + env.Character, nil
			},
		}
		reg, err := NewRegistry([]Definition{def}, zerolog.Nop())
		require.NoError(t, err)

		ctx := WithIdentity(context.Background(), Identity{
			Platform:  "telegram",
			ChannelID: "chat1",
			UserID:    "u7",
			Character: "Dara",
		})
		out := reg.Execute(ctx, Env{Campaign: "shadowfell"}, "speaker", nil)
		assert.Equal(t, "u7/Dara", out)
	})
}
