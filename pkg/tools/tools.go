// Package tools defines the facilitator's tool surface: the registry of
// callable tools, argument validation, and dispatch.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/halden/meeple/pkg/schema"
)

// Env carries the per-request scope a tool runs under. The campaign name
// selects the tenant; handlers never reach for ambient state.
type Env struct {
	Campaign  string
	Platform  string
	ChannelID string
	UserID    string
	Character string
	Debug     bool
}

type debugKey struct{}

// WithDebug marks a request as debug-mode, surfacing verbose tool output.
// The flag rides the context because the adapter holding the Env outlives
// individual requests.
func WithDebug(ctx context.Context) context.Context {
	return context.WithValue(ctx, debugKey{}, true)
}

func debugFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(debugKey{}).(bool)
	return v
}

// Identity is the speaker one request acts on behalf of. Like the debug
// flag it rides the context, since the adapter holding the Env outlives
// individual requests.
type Identity struct {
	Platform  string
	ChannelID string
	UserID    string
	Character string
}

type identityKey struct{}

// WithIdentity attaches the speaker to the request context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the speaker attached to the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Handler executes one tool call and returns the text fed back to the model.
type Handler func(ctx context.Context, env Env, args map[string]interface{}) (string, error)

// Definition pairs a tool's schema with its handler.
type Definition struct {
	Schema  schema.Tool
	Handler Handler
}

// Registry holds the tool set for one campaign session. It is populated at
// construction and never mutated afterwards, so dispatch needs no locking.
type Registry struct {
	defs    map[string]Definition
	names   []string
	logger  zerolog.Logger
	timeout time.Duration
}

// NewRegistry builds a Registry from definitions. Duplicate names are
// rejected.
func NewRegistry(defs []Definition, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		defs:    make(map[string]Definition, len(defs)),
		logger:  logger,
		timeout: 30 * time.Second,
	}

	for _, def := range defs {
		if def.Schema.Name == "" {
			return nil, fmt.Errorf("tool definition missing a name")
		}
		if _, exists := r.defs[def.Schema.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", def.Schema.Name)
		}
		if def.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", def.Schema.Name)
		}
		r.defs[def.Schema.Name] = def
		r.names = append(r.names, def.Schema.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Specs returns the tool schemas in name order, for the provider adapters.
func (r *Registry) Specs() []schema.Tool {
	specs := make([]schema.Tool, 0, len(r.names))
	for _, name := range r.names {
		specs = append(specs, r.defs[name].Schema)
	}
	return specs
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Execute dispatches one tool call. The returned string is always safe to
// feed back to the model: unknown tools, invalid arguments, handler errors,
// and panics all come back as error text rather than a Go error, so a bad
// call never aborts the conversation turn.
func (r *Registry) Execute(ctx context.Context, env Env, name string, args map[string]interface{}) string {
	def, ok := r.defs[name]
	if !ok {
		r.logger.Warn().Str("tool", name).Msg("Unknown tool requested")
		return fmt.Sprintf("Error: Tool %s not found.", name)
	}

	if id, ok := IdentityFromContext(ctx); ok {
		env.Platform = id.Platform
		env.ChannelID = id.ChannelID
		env.UserID = id.UserID
		env.Character = id.Character
	}
	if debugFromContext(ctx) {
		env.Debug = true
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	applyDefaults(def.Schema, args)

	if err := validateArgs(def.Schema, args); err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Tool argument validation failed")
		return fmt.Sprintf("Error: Invalid arguments for %s: %v", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	output, err := r.invoke(ctx, def, env, args)
	elapsed := time.Since(start)

	event := r.logger.Debug()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.Str("tool", name).Str("campaign", env.Campaign).Dur("elapsed", elapsed).Msg("Tool executed")

	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return output
}

// invoke runs the handler in a goroutine so a stuck tool cannot outlive the
// deadline, recovering panics into error text.
func (r *Registry) invoke(ctx context.Context, def Definition, env Env, args map[string]interface{}) (output string, err error) {
	type result struct {
		output string
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("tool %s panicked: %v", def.Schema.Name, rec)}
			}
		}()
		out, handlerErr := def.Handler(ctx, env, args)
		done <- result{output: out, err: handlerErr}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool %s timed out: %w", def.Schema.Name, ctx.Err())
	}
}

func applyDefaults(tool schema.Tool, args map[string]interface{}) {
	for _, p := range tool.Params {
		if p.Default == nil {
			continue
		}
		if _, present := args[p.Name]; !present {
			args[p.Name] = p.Default
		}
	}
}

func validateArgs(tool schema.Tool, args map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(tool.JSONSchema())
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s", joinLines(msgs))
	}
	return nil
}

func joinLines(msgs []string) string {
	out := ""
	for i, m := range msgs {
		if i > 0 {
			out += "; "
		}
		out += m
	}
	return out
}
