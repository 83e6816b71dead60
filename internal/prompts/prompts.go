// Package prompts holds the instruction texts sent to the language model.
package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var builtin []byte

// Catalog is the set of instructions used by the pipeline
type Catalog struct {
	BaseSystemPrompt          string `yaml:"base_system_prompt"`
	ClassificationInstruction string `yaml:"classification_instruction"`
	ExtractionInstruction     string `yaml:"extraction_instruction"`
}

// Default returns the built-in catalog
func Default() (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(builtin, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse built-in prompts: %w", err)
	}
	return &catalog, nil
}

// Load returns the built-in catalog with any entries from path layered on top.
// An empty path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	catalog, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	if override.BaseSystemPrompt != "" {
		catalog.BaseSystemPrompt = override.BaseSystemPrompt
	}
	if override.ClassificationInstruction != "" {
		catalog.ClassificationInstruction = override.ClassificationInstruction
	}
	if override.ExtractionInstruction != "" {
		catalog.ExtractionInstruction = override.ExtractionInstruction
	}
	return catalog, nil
}
