package config

import (
	"fmt"

	configschema "github.com/brandguard/brandguard/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// validateConfigSchema checks YAML config bytes against an embedded schema.
// Empty input is accepted so callers can fall back to defaults.
func validateConfigSchema(name, schemaPath string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	schemaBytes, err := configSchemaFS.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("load %s schema: %w", name, err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse %s config: %w", name, err)
	}
	if payload == nil {
		return nil
	}
	if err := configschema.ValidateSchema(name+"-config", schemaBytes, payload); err != nil {
		return fmt.Errorf("validate %s config: %w", name, err)
	}
	return nil
}
