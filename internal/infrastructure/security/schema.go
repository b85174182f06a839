package security

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// cardPayloadSchema is the conservative shape an AI card-parse response
// object must fit: known fields are type-checked, confidence values are
// bounded, unknown keys are tolerated (the parser adapter drops them).
func cardPayloadSchema() map[string]any {
	stringProp := map[string]any{"type": "string", "maxLength": 500}
	confidenceProp := map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":         stringProp,
			"name_english": stringProp,
			"company":      stringProp,
			"job_title":    stringProp,
			"department":   stringProp,
			"email":        stringProp,
			"phone":        stringProp,
			"mobile":       stringProp,
			"fax":          stringProp,
			"address":      stringProp,
			"website":      stringProp,
			"notes":        stringProp,
			"confidence":   confidenceProp,
			"field_confidence": map[string]any{
				"type":                 "object",
				"additionalProperties": confidenceProp,
			},
		},
	}
}

type responseSchema struct {
	compiled *jsonschema.Schema
}

func compileResponseSchema() *responseSchema {
	raw, err := json.Marshal(cardPayloadSchema())
	if err != nil {
		panic(fmt.Sprintf("security: marshal card payload schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("card_payload.json", bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("security: add card payload schema: %v", err))
	}
	compiled, err := compiler.Compile("card_payload.json")
	if err != nil {
		panic(fmt.Sprintf("security: compile card payload schema: %v", err))
	}
	return &responseSchema{compiled: compiled}
}

func (s *responseSchema) validate(decoded any) error {
	return s.compiled.Validate(decoded)
}
