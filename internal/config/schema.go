package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://scrivener.local/schema/config-v1.json"

//go:embed schema/config.schema.json
var schemaDoc []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Schema returns the embedded JSON Schema source.
func Schema() []byte {
	return append([]byte(nil), schemaDoc...)
}

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaDoc)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a decoded document (from TOML, JSON or YAML)
// against the schema. Unknown keys and wrongly typed values are caught
// here; semantic checks are left to Validate.
func ValidateDocument(doc map[string]any) error {
	schema, err := compiled()
	if err != nil {
		return err
	}

	// Normalise decoder-specific types (int64, nested maps) to the shapes
	// encoding/json produces.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
