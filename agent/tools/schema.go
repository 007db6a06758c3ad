// Package tools declares the tools agents can offer to the model and the
// executor that validates and dispatches tool-invocation requests.
package tools

import (
	"encoding/json"
	"fmt"
)

// PropertyType is a JSON Schema type.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeInteger PropertyType = "integer"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
)

// Property defines a single property in a tool's argument schema.
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Items       *Property    `json:"items,omitempty"`
}

// PropertyMap maps property names to their definitions.
type PropertyMap map[string]Property

// Schema is the JSON Schema subset used for tool arguments.
type Schema struct {
	Type       PropertyType `json:"type"`
	Properties PropertyMap  `json:"properties"`
	Required   []string     `json:"required,omitempty"`
}

// String returns the JSON representation handed to the provider.
func (s Schema) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Validate parses raw JSON arguments against the schema. It checks required
// keys, rejects unknown keys, and enforces primitive types. A failure here
// means the tool is never dispatched.
func (s Schema) Validate(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return nil, fmt.Errorf("missing required argument %q", name)
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			return nil, fmt.Errorf("unknown argument %q", name)
		}
		if err := checkType(name, value, prop.Type); err != nil {
			return nil, err
		}
	}

	return args, nil
}

func checkType(name string, value any, want PropertyType) error {
	if value == nil {
		return fmt.Errorf("argument %q is null", name)
	}
	switch want {
	case TypeString:
		if _, ok := value.(string); !ok {
			return typeMismatch(name, want, value)
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return typeMismatch(name, want, value)
		}
	case TypeInteger:
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return typeMismatch(name, want, value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(name, want, value)
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return typeMismatch(name, want, value)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return typeMismatch(name, want, value)
		}
	}
	return nil
}

func typeMismatch(name string, want PropertyType, got any) error {
	return fmt.Errorf("argument %q: expected %s, got %T", name, want, got)
}
