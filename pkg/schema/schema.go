// Package schema holds the provider-neutral tool parameter model and compiles
// it into the wire schema each LLM provider expects.
package schema

import (
	"google.golang.org/genai"
)

// Param describes one tool parameter. A parameter is required exactly when it
// carries no default value.
type Param struct {
	Name        string
	Type        string
	Description string
	Enum        []string
	// Items is the element type for array parameters. Empty means string.
	Items string
	// Default, when non-nil, makes the parameter optional.
	Default interface{}
}

// Required reports whether the parameter must be supplied by the model.
func (p Param) Required() bool {
	return p.Default == nil
}

// Tool is a provider-neutral tool declaration.
type Tool struct {
	Name        string
	Description string
	Params      []Param
}

var jsonTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// normalizeType maps unknown parameter types to string so a typo in a tool
// declaration degrades to a permissive schema instead of a provider error.
func normalizeType(t string) string {
	if jsonTypes[t] {
		return t
	}
	return "string"
}

// JSONSchema renders the tool's parameters as a JSON Schema object. This is
// the shape OpenAI-compatible endpoints accept directly and the shape used to
// validate arguments before dispatch.
func (t Tool) JSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(t.Params))
	var required []string

	for _, p := range t.Params {
		prop := map[string]interface{}{
			"type": normalizeType(p.Type),
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = toAnySlice(p.Enum)
		}
		if normalizeType(p.Type) == "array" {
			items := p.Items
			if items == "" {
				items = "string"
			}
			prop["items"] = map[string]interface{}{"type": normalizeType(items)}
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop

		if p.Required() {
			required = append(required, p.Name)
		}
	}

	out := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// OpenAI renders the tool as an OpenAI function definition body.
func (t Tool) OpenAI() map[string]interface{} {
	return map[string]interface{}{
		"name":        t.Name,
		"description": t.Description,
		"parameters":  t.JSONSchema(),
	}
}

// AnthropicInput renders the properties map and required list for an
// Anthropic tool input schema.
func (t Tool) AnthropicInput() (map[string]interface{}, []string) {
	s := t.JSONSchema()
	properties := s["properties"].(map[string]interface{})
	var required []string
	if r, ok := s["required"].([]string); ok {
		required = r
	}
	return properties, required
}

// Gemini renders the tool as a Gemini function declaration.
func (t Tool) Gemini() *genai.FunctionDeclaration {
	properties := make(map[string]*genai.Schema, len(t.Params))
	var required []string

	for _, p := range t.Params {
		prop := &genai.Schema{
			Type:        geminiType(normalizeType(p.Type)),
			Description: p.Description,
		}
		if len(p.Enum) > 0 {
			prop.Enum = p.Enum
		}
		if normalizeType(p.Type) == "array" {
			items := p.Items
			if items == "" {
				items = "string"
			}
			prop.Items = &genai.Schema{Type: geminiType(normalizeType(items))}
		}
		properties[p.Name] = prop

		if p.Required() {
			required = append(required, p.Name)
		}
	}

	decl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}
	if len(properties) > 0 {
		decl.Parameters = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   required,
		}
	}
	return decl
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func toAnySlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
