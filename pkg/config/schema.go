package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// AgentConfigSchema validates an agent's config payload against a compiled
// JSON Schema, so a malformed config is rejected at creation time instead
// of surfacing as a runtime failure inside the worker space.
type AgentConfigSchema struct {
	schema *jsonschema.Schema
}

// CompileAgentConfigSchema compiles schemaJSON for later use with Validate.
func CompileAgentConfigSchema(schemaJSON []byte) (*AgentConfigSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal agent config schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("agent-config.json", doc); err != nil {
		return nil, fmt.Errorf("add agent config schema resource: %w", err)
	}
	schema, err := c.Compile("agent-config.json")
	if err != nil {
		return nil, fmt.Errorf("compile agent config schema: %w", err)
	}

	return &AgentConfigSchema{schema: schema}, nil
}

// Validate checks config against the compiled schema. A nil schema always
// passes — not every agent kind requires a structured config.
func (s *AgentConfigSchema) Validate(config map[string]any) error {
	if s == nil || s.schema == nil {
		return nil
	}

	// Round-trip through JSON so numeric types match what the schema
	// compiler expects (json.Number rather than Go's default float64).
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("unmarshal agent config: %w", err)
	}

	if err := s.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}
