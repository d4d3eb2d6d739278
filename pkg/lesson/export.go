package lesson

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the lesson document schema.
const SchemaID = "https://github.com/ormasoftchile/parla/schemas/lesson-v1.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Lesson Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Lesson{})
	s.ID = SchemaID
	s.Title = "parla lesson v1"
	s.Description = "Schema for parla lesson YAML/JSON documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lesson schema: %w", err)
	}
	return data, nil
}
