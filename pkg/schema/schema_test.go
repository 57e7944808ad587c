package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func sampleTool() Tool {
	return Tool{
		Name:        "manage_inventory",
		Description: "Add or remove items from a character's inventory.",
		Params: []Param{
			{Name: "character", Type: "string", Description: "Character name"},
			{Name: "action", Type: "string", Enum: []string{"add", "remove"}},
			{Name: "quantity", Type: "integer", Default: 1},
			{Name: "tags", Type: "array"},
		},
	}
}

func TestJSONSchema(t *testing.T) {
	s := sampleTool().JSONSchema()

	t.Run("should mark defaultless params required", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"character", "action", "tags"}, s["required"])
	})

	t.Run("should carry enum values", func(t *testing.T) {
		props := s["properties"].(map[string]interface{})
		action := props["action"].(map[string]interface{})
		assert.Equal(t, []interface{}{"add", "remove"}, action["enum"])
	})

	t.Run("should default array items to string", func(t *testing.T) {
		props := s["properties"].(map[string]interface{})
		tags := props["tags"].(map[string]interface{})
		assert.Equal(t, map[string]interface{}{"type": "string"}, tags["items"])
	})

	t.Run("should include defaults on optional params", func(t *testing.T) {
		props := s["properties"].(map[string]interface{})
		quantity := props["quantity"].(map[string]interface{})
		assert.Equal(t, 1, quantity["default"])
	})

	t.Run("should coerce unknown types to string", func(t *testing.T) {
		tool := Tool{Name: "x", Params: []Param{{Name: "p", Type: "uuid"}}}
		props := tool.JSONSchema()["properties"].(map[string]interface{})
		p := props["p"].(map[string]interface{})
		assert.Equal(t, "string", p["type"])
	})

	t.Run("should omit required key when all params optional", func(t *testing.T) {
		tool := Tool{Name: "x", Params: []Param{{Name: "p", Type: "string", Default: "v"}}}
		_, ok := tool.JSONSchema()["required"]
		assert.False(t, ok)
	})
}

func TestGemini(t *testing.T) {
	decl := sampleTool().Gemini()

	t.Run("should produce object parameters", func(t *testing.T) {
		require.NotNil(t, decl.Parameters)
		assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
		assert.ElementsMatch(t, []string{"character", "action", "tags"}, decl.Parameters.Required)
	})

	t.Run("should map parameter types", func(t *testing.T) {
		props := decl.Parameters.Properties
		assert.Equal(t, genai.TypeInteger, props["quantity"].Type)
		assert.Equal(t, genai.TypeArray, props["tags"].Type)
		require.NotNil(t, props["tags"].Items)
		assert.Equal(t, genai.TypeString, props["tags"].Items.Type)
	})

	t.Run("should omit parameters for zero-arg tools", func(t *testing.T) {
		tool := Tool{Name: "start_new_session", Description: "Start a session."}
		assert.Nil(t, tool.Gemini().Parameters)
	})
}

func TestAnthropicInput(t *testing.T) {
	properties, required := sampleTool().AnthropicInput()

	assert.Len(t, properties, 4)
	assert.ElementsMatch(t, []string{"character", "action", "tags"}, required)
}
