package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// StepDoc mirrors the common step fields for JSON Schema generation. Handler
// payloads vary per action, so additional properties stay open; the schema
// pins down the shared shape and the action spelling set.
type StepDoc struct {
	Action      string `json:"action" jsonschema:"required"`
	Tag         string `json:"tag,omitempty"`
	Description string `json:"description,omitempty"`
	When        string `json:"when,omitempty"`
	NextSuccess string `json:"next_success_step,omitempty"`
	NextError   string `json:"next_error_step,omitempty"`
	Value       any    `json:"value,omitempty"`
	Selector    string `json:"selector,omitempty"`
	Variable    string `json:"variable,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
}

// ScenarioDoc mirrors the top-level document for schema generation.
type ScenarioDoc struct {
	Name        string    `json:"name" jsonschema:"required"`
	Description string    `json:"description,omitempty"`
	Steps       []StepDoc `json:"steps" jsonschema:"required,minItems=1"`
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for
// scenario files using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false
	r.AllowAdditionalProperties = true

	s := r.Reflect(&ScenarioDoc{})
	s.ID = "https://github.com/Tort1k558/Camouflow/schemas/scenario-v1.json"
	s.Title = "Camouflow Scenario v1"
	s.Description = "Schema for Camouflow scenario JSON documents (Draft 2020-12)"

	if def, ok := s.Definitions["StepDoc"]; ok {
		if prop, found := def.Properties.Get("action"); found {
			for _, name := range ActionSpellings() {
				prop.Enum = append(prop.Enum, name)
			}
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
