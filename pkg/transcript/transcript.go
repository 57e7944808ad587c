// Package transcript defines the canonical conversation format persisted per
// campaign and shared by every provider adapter.
package transcript

import "strings"

// Roles used in the canonical transcript. Assistant output is stored under the
// "model" role for compatibility with the on-disk history format.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one role-tagged message. Parts are plain text segments; provider
// control frames (tool calls and results) never appear here.
type Turn struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// Text joins the turn's parts into a single string.
func (t Turn) Text() string {
	return strings.Join(t.Parts, "\n\n")
}

// Append returns turns with text added under role, merging into the previous
// turn when it carries the same role. Some providers reject consecutive
// messages with a repeated role, so the canonical form never contains them.
func Append(turns []Turn, role, text string) []Turn {
	if len(turns) > 0 && turns[len(turns)-1].Role == role {
		last := &turns[len(turns)-1]
		if len(last.Parts) > 0 {
			last.Parts[len(last.Parts)-1] += "\n\n" + text
		} else {
			last.Parts = []string{text}
		}
		return turns
	}
	return append(turns, Turn{Role: role, Parts: []string{text}})
}

// Merge collapses adjacent same-role turns in place and returns the result.
func Merge(turns []Turn) []Turn {
	var merged []Turn
	for _, turn := range turns {
		merged = Append(merged, turn.Role, turn.Text())
	}
	return merged
}

// PruneEmpty recursively removes empty strings, empty slices, empty maps, and
// nils from a JSON-shaped value. Present-but-zero numbers and false booleans
// are kept: only emptiness is pruned, never falsiness.
func PruneEmpty(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			if isEmpty(item) {
				continue
			}
			out[key] = PruneEmpty(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			if isEmpty(item) {
				continue
			}
			out = append(out, PruneEmpty(item))
		}
		return out
	default:
		return value
	}
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}
