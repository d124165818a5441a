package patch

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

func enumSchema[T ~string](values []T) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string"}
	for _, v := range values {
		s.Enum = append(s.Enum, string(v))
	}
	return s
}

func (Waveform) JSONSchema() *jsonschema.Schema   { return enumSchema(Waveforms) }
func (FilterType) JSONSchema() *jsonschema.Schema { return enumSchema(FilterTypes) }
func (LFOTarget) JSONSchema() *jsonschema.Schema  { return enumSchema(LFOTargets) }

// Schema returns the JSON Schema of a patch document. Every field is
// required, matching what UnmarshalJSON accepts.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Patch{})
	s.Title = "Timbuk patch"
	s.Description = "Complete set of synthesis parameters for one sound."
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch schema: %w", err)
	}
	return b, nil
}
