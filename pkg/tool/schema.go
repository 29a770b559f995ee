package tool

import (
	"fmt"
	"math"
)

// JSONSchema is the subset of JSON Schema used to describe and validate
// tool parameters.
type JSONSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Validate checks parsed arguments against the schema: required fields
// must be present and typed properties must match their declared
// primitive type. Properties without a recognizable type are skipped.
func (s *JSONSchema) Validate(params map[string]any) error {
	if s == nil {
		return nil
	}
	for _, field := range s.Required {
		if _, ok := params[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	for key, value := range params {
		def, ok := s.Properties[key]
		if !ok {
			continue
		}
		expected := propertyType(def)
		if expected == "" {
			continue
		}
		if !matchesType(value, expected) {
			return fmt.Errorf("field %q: expected %s, got %T", key, expected, value)
		}
	}
	return nil
}

func propertyType(def any) string {
	if m, ok := def.(map[string]any); ok {
		if typ, ok := m["type"].(string); ok {
			return typ
		}
	}
	return ""
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumeric(value)
	case "integer":
		return isIntegral(value)
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		// Unknown declared types are not enforced.
		return true
	}
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float32, float64, int, int32, int64:
		return true
	}
	return false
}

func isIntegral(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return math.Trunc(v) == v
	case float32:
		return math.Trunc(float64(v)) == float64(v)
	}
	return false
}
