package registry

import (
	"encoding/json"
	"fmt"

	"github.com/jakewatkins/mcphost/internal/hosterrors"
)

type jsonSchema struct {
	Required   []string                  `json:"required"`
	Properties map[string]schemaProperty `json:"properties"`
}

type schemaProperty struct {
	Type string `json:"type"`
}

// ValidateToolParams checks arguments against a tool's inputSchema: every
// name in "required" must be present, and for any argument whose property
// declares a "type", the provided value's JSON kind must match. This is a
// structural check, not a full JSON Schema validator, matching the
// original Host's Tool.validate_params (mcp_host/types.py).
func ValidateToolParams(toolName string, inputSchema json.RawMessage, arguments map[string]interface{}) error {
	if len(inputSchema) == 0 {
		return nil
	}

	var schema jsonSchema
	if err := json.Unmarshal(inputSchema, &schema); err != nil {
		// A schema we can't parse can't be enforced; let the server reject
		// the call itself rather than failing closed on our own bug.
		return nil
	}

	for _, req := range schema.Required {
		if _, ok := arguments[req]; !ok {
			return &hosterrors.ValidationError{
				Message:        fmt.Sprintf("missing required argument %q for tool %q", req, toolName),
				ValidationType: "tool_parameters",
				Details: map[string]interface{}{
					"tool":     toolName,
					"argument": req,
				},
			}
		}
	}

	for key, value := range arguments {
		prop, ok := schema.Properties[key]
		if !ok || prop.Type == "" {
			continue
		}
		if !matchesJSONType(value, prop.Type) {
			return &hosterrors.ValidationError{
				Message:        fmt.Sprintf("argument %q for tool %q must be of type %q", key, toolName, prop.Type),
				ValidationType: "tool_parameters",
				Details: map[string]interface{}{
					"tool":          toolName,
					"argument":      key,
					"expected_type": prop.Type,
				},
			}
		}
	}

	return nil
}

func matchesJSONType(value interface{}, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
