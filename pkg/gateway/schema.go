package gateway

import (
	"encoding/json"
	"slices"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects T into a schema map accepted by strict structured
// output: every object closed and every property required.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	s := reflector.Reflect(v)
	b, err := s.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	closeObjects(m)
	return m
}

// closeObjects walks the schema marking objects closed and all of their
// properties required, as strict mode demands.
func closeObjects(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			slices.Sort(required)
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		closeObjects(items)
	}
}

var (
	evaluationSchema = generateSchema[evaluationResponse]()
	replySchema      = generateSchema[replyResponse]()
)

// extractionSchema builds the per-goal extraction schema: one nullable
// string property per requested name.
func extractionSchema(spec map[string]string) map[string]any {
	props := make(map[string]any, len(spec))
	required := make([]string, 0, len(spec))
	for name, desc := range spec {
		props[name] = map[string]any{
			"type":        []string{"string", "null"},
			"description": desc,
		}
		required = append(required, name)
	}
	slices.Sort(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
