package tap

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// SchemaSource supplies the JSON schema of a stream.
type SchemaSource interface {
	Schema(def StreamDefinition) (map[string]any, error)
}

// DefaultSchemas returns the schemas shipped with the tap.
func DefaultSchemas() EmbeddedSchemas {
	return EmbeddedSchemas{Root: "schemas", Files: schemaFiles}
}

// Schema returns the embedded schema of def, or a generated one when none is embedded.
func (es EmbeddedSchemas) Schema(def StreamDefinition) (map[string]any, error) {
	data, ok, err := es.Find(def.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema for %s %w", def.Name, err)
	}
	if !ok {
		return GeneratedSchema(def), nil
	}
	var result map[string]any
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid schema for %s %w", def.Name, err)
	}
	return result, nil
}

// GeneratedSchema describes the key fields of def and allows any other property.
// Flattened Clover records have too many optional fields to enumerate.
func GeneratedSchema(def StreamDefinition) map[string]any {
	properties := map[string]any{}
	for _, key := range def.PrimaryKeys {
		properties[key] = map[string]any{"type": []string{"string", "null"}}
	}
	for _, f := range def.ChildContext {
		if f.RecordField != "" {
			properties[f.RecordField] = map[string]any{"type": []string{"string", "null"}}
		}
	}
	if def.ReplicationKey != "" {
		properties[def.ReplicationKey] = map[string]any{"type": []string{"integer", "null"}}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
}
