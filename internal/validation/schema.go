package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// LoadSchema compiles a JSON schema document
func LoadSchema(schemaJSON []byte) (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return schema, nil
}

// Validate validates a JSON document against a compiled schema
func Validate(document string, schema *gojsonschema.Schema) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}

	return nil
}

// ValidateDocument compiles schemaJSON and validates document against it
func ValidateDocument(document string, schemaJSON []byte) error {
	schema, err := LoadSchema(schemaJSON)
	if err != nil {
		return err
	}
	return Validate(document, schema)
}
