package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// configSchema documents the accepted config.yaml shape. Validation is
// advisory: unknown or ill-typed keys produce a warning, never a
// startup failure.
const configSchema = `{
	"type": "object",
	"properties": {
		"server_url":         {"type": "string"},
		"auth_token":         {"type": "string"},
		"filter_debounce_ms": {"type": "integer", "minimum": 0},
		"highlight_ttl_ms":   {"type": "integer", "minimum": 0},
		"resync_cron":        {"type": "string"},
		"log_level":          {"type": "string", "enum": ["debug", "info", "warn", "warning", "error"]},
		"audit_to_db":        {"type": "boolean"},
		"otel": {
			"type": "object",
			"properties": {
				"enabled":      {"type": "boolean"},
				"exporter":     {"type": "string", "enum": ["otlp-http", "stdout", "none", ""]},
				"endpoint":     {"type": "string"},
				"service_name": {"type": "string"},
				"sample_rate":  {"type": "number", "minimum": 0, "maximum": 1}
			}
		}
	},
	"additionalProperties": false
}`

// ValidateYAML checks raw config.yaml bytes against the schema and
// returns a human-readable warning for each violation.
func ValidateYAML(data []byte) []string {
	if len(data) == 0 {
		return nil
	}

	var parsed any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return []string{fmt.Sprintf("config.yaml is not valid YAML: %v", err)}
	}
	if parsed == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees json-native types.
	jsonBytes, err := json.Marshal(parsed)
	if err != nil {
		return []string{fmt.Sprintf("config.yaml has non-JSON-representable values: %v", err)}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
	if err != nil {
		return []string{fmt.Sprintf("config.yaml has non-JSON-representable values: %v", err)}
	}

	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return []string{fmt.Sprintf("internal schema error: %v", err)}
	}
	if err := compiler.AddResource("config.schema.json", schemaDoc); err != nil {
		return []string{fmt.Sprintf("internal schema error: %v", err)}
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return []string{fmt.Sprintf("internal schema error: %v", err)}
	}

	if err := schema.Validate(doc); err != nil {
		var warnings []string
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			for _, cause := range flattenCauses(ve) {
				warnings = append(warnings, cause)
			}
			return warnings
		}
		return []string{err.Error()}
	}
	return nil
}

func flattenCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("config.yaml %s: %v", loc, ve.ErrorKind)}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenCauses(cause)...)
	}
	return out
}
