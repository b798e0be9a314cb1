package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// journeySchema constrains the per-type shape of journey nodes beyond what
// struct tags can express: a DELAY node needs a positive duration and a
// CONDITIONAL node needs a condition with branch targets.
var journeySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"allOf": []any{
					map[string]any{
						"if": map[string]any{
							"properties": map[string]any{"type": map[string]any{"const": "MESSAGE"}},
						},
						"then": map[string]any{
							"required": []any{"message"},
						},
					},
					map[string]any{
						"if": map[string]any{
							"properties": map[string]any{"type": map[string]any{"const": "DELAY"}},
						},
						"then": map[string]any{
							"required": []any{"duration_seconds"},
							"properties": map[string]any{
								"duration_seconds": map[string]any{"type": "integer", "minimum": 1},
							},
						},
					},
					map[string]any{
						"if": map[string]any{
							"properties": map[string]any{"type": map[string]any{"const": "CONDITIONAL"}},
						},
						"then": map[string]any{
							"required": []any{"condition"},
							"properties": map[string]any{
								"condition": map[string]any{
									"type":     "object",
									"required": []any{"field", "operator"},
								},
							},
						},
					},
				},
			},
		},
	},
}

// validateJourneySchema validates a decoded journey request body against the
// node shape schema.
func validateJourneySchema(body map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(journeySchema)
	dataLoader := gojsonschema.NewGoLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
