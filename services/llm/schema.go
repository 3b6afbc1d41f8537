package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the JSON schema of a tool input struct into the plain
// object form both providers accept.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)

	out := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}

	raw, err := json.Marshal(schema.Properties)
	if err == nil {
		var props map[string]any
		if json.Unmarshal(raw, &props) == nil && props != nil {
			out["properties"] = props
		}
	}

	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}

	return out
}
