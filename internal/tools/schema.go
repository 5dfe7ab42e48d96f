package tools

import (
	"encoding/json"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
)

// Field describes one parameter. Items is the element description for
// arrays; its Name is ignored.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     any
	Enum        []string
	Items       *Field
	MinItems    int
	Minimum     *float64
	Maximum     *float64
}

// Schema is the ordered parameter list of a tool.
type Schema struct {
	Fields []Field
}

func Float(v float64) *float64 {
	return &v
}

// JSON renders the schema as a JSON Schema object.
func (s Schema) JSON() json.RawMessage {
	properties := map[string]any{}
	required := []string{}
	for _, f := range s.Fields {
		properties[f.Name] = f.jsonSchema()
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	data, _ := json.Marshal(doc)
	return data
}

func (f Field) jsonSchema() map[string]any {
	out := map[string]any{"type": string(f.Type)}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Default != nil {
		out["default"] = f.Default
	}
	if len(f.Enum) > 0 {
		out["enum"] = f.Enum
	}
	if f.Items != nil {
		out["items"] = f.Items.jsonSchema()
	}
	if f.MinItems > 0 {
		out["minItems"] = f.MinItems
	}
	if f.Minimum != nil {
		out["minimum"] = *f.Minimum
	}
	if f.Maximum != nil {
		out["maximum"] = *f.Maximum
	}
	return out
}

// applyDefaults fills absent optional fields with their declared default.
func (s Schema) applyDefaults(args map[string]any) {
	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := args[f.Name]; !ok {
			args[f.Name] = f.Default
		}
	}
}
