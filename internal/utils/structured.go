// Package utils holds small helpers shared across pipeline stages.
package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// DecodeStructured extracts the first JSON object from raw model output,
// validates it against the schema, and decodes it into out. Models wrap JSON
// in prose or code fences often enough that a plain Unmarshal is not reliable.
func DecodeStructured(raw string, schema *jsonschema.Schema, out any) error {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	clean = clean[start : end+1]

	var instance any
	if err := json.Unmarshal([]byte(clean), &instance); err != nil {
		return fmt.Errorf("failed to parse model output: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("model output failed schema validation: %w", err)
	}

	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}
