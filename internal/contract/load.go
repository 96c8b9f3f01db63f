package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a contract from a .json, .yaml/.yml, or .md file, checks
// it against the schema and the contract invariants, and returns it
// normalized. Validation failures are reported as a [*ValidationError]
// whose Raw field holds the file content.
func Load(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contract: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".md", ".markdown":
		return ParseMarkdown(data)
	default:
		return nil, fmt.Errorf("unsupported contract format %q (want .json, .yaml, or .md)", filepath.Ext(path))
	}
}

// ParseJSON decodes, validates, and normalizes a JSON contract.
func ParseJSON(data []byte) (*Contract, error) {
	if errs := SchemaErrors(data); len(errs) > 0 {
		return nil, &ValidationError{Raw: string(data), Issues: errs}
	}

	var c Contract
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &ValidationError{Raw: string(data), Issues: []string{fmt.Sprintf("JSON parse error: %v", err)}}
	}
	return finish(&c, string(data))
}

// ParseYAML decodes, validates, and normalizes a YAML contract.
func ParseYAML(data []byte) (*Contract, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Raw: string(data), Issues: []string{fmt.Sprintf("YAML parse error: %v", err)}}
	}
	if errs := validateAgainstSchema(contractSchema, convertToJSONCompatible(doc)); len(errs) > 0 {
		return nil, &ValidationError{Raw: string(data), Issues: errs}
	}

	var c Contract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &ValidationError{Raw: string(data), Issues: []string{fmt.Sprintf("YAML parse error: %v", err)}}
	}
	return finish(&c, string(data))
}

// finish runs invariant validation and normalization on a decoded
// contract, attaching raw to any validation error.
func finish(c *Contract, raw string) (*Contract, error) {
	if err := c.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Raw = raw
			return nil, ve
		}
		return nil, err
	}
	c.Normalize()
	return c, nil
}

// Save writes the contract as indented JSON to path, creating parent
// directories as needed.
func Save(c *Contract, path string) error {
	text, err := FormatJSON(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating contract directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing contract: %w", err)
	}
	return nil
}
