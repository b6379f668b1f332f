// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package plugin

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var (
	schemaOnce     sync.Once
	schemaCompiled *jschema.Schema
	schemaErr      error
)

// GenerateSchema generates a JSON Schema from the Manifest struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Manifest{})

	schema.ID = jsonschema.ID(GetSchemaID())
	schema.Title = "Backyardbot Plugin Manifest"
	schema.Description = "Schema for plugin.yaml manifest files"

	if props := schema.Properties; props != nil {
		if name, ok := props.Get("name"); ok {
			name.Pattern = namePattern.String()
			name.MaxLength = uint64Ptr(maxNameLength)
		}
		if version, ok := props.Get("version"); ok {
			version.MinLength = uint64Ptr(1)
		}
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeSchemaInvalid).Wrapf(err, "marshal schema")
	}
	return data, nil
}

func uint64Ptr(v uint64) *uint64 { return &v }

// ValidateSchema validates YAML data against the plugin manifest JSON Schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code(CodeManifestEmpty).Errorf("manifest data is empty")
	}

	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.Code(CodeInvalidManifest).Wrapf(err, "invalid YAML")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(convertToJSONTypes(yamlData)); err != nil {
		return oops.Code(CodeSchemaInvalid).Wrapf(err, "schema validation failed")
	}
	return nil
}

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaBytes, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}

		schemaData, err := jschema.UnmarshalJSON(strings.NewReader(string(schemaBytes)))
		if err != nil {
			schemaErr = oops.Code(CodeSchemaInvalid).Wrapf(err, "parse schema JSON")
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", schemaData); err != nil {
			schemaErr = oops.Code(CodeSchemaInvalid).Wrapf(err, "add schema resource")
			return
		}
		schemaCompiled, schemaErr = c.Compile("schema.json")
		if schemaErr != nil {
			schemaErr = oops.Code(CodeSchemaInvalid).Wrapf(schemaErr, "compile schema")
		}
	})
	return schemaCompiled, schemaErr
}

// convertToJSONTypes converts YAML-parsed data to the types the validator
// understands. Integers become json.Number, nested structures are walked.
func convertToJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = convertToJSONTypes(v)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v := range val {
			result[i] = convertToJSONTypes(v)
		}
		return result
	case string, bool, nil, float64, int, int64, uint64:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var result any
			if err := json.Unmarshal(b, &result); err == nil {
				return result
			}
		}
		return val
	}
}

// GetSchemaID returns the schema $id for use in plugin.yaml files.
func GetSchemaID() string {
	return "https://backyardbot.github.io/schemas/plugin.schema.json"
}

// FormatSchemaError formats a schema validation error for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), "schema validation failed: ")
}
