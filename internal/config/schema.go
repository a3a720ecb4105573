package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ConfigValueType defines the expected type for a configuration value.
type ConfigValueType int

const (
	TypeBool ConfigValueType = iota
	TypeInt
	TypeDuration
	TypeString
	TypeEnum
)

// String returns the string representation of ConfigValueType.
func (t ConfigValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDuration:
		return "duration"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// ConfigKeySchema defines a known configuration key with its expected type and validation rules.
type ConfigKeySchema struct {
	Path          string          // Dotted key path (e.g., "index.kind")
	Type          ConfigValueType // Expected value type for validation
	AllowedValues []string        // Valid values for enum types (empty for non-enums)
	Description   string          // Human-readable description for help text
}

// KnownKeys is the registry of all known configuration keys with their schemas.
var KnownKeys = map[string]ConfigKeySchema{
	"workspace_file":          {Type: TypeString, Description: "Workspace description relative to the repository root"},
	"changelog_file":          {Type: TypeString, Description: "Changelog file name inside each package directory"},
	"tag_format":              {Type: TypeString, Description: "Release tag template over {Name, Version}"},
	"commit":                  {Type: TypeBool, Description: "Commit manifests and changelogs on --execute"},
	"tag":                     {Type: TypeBool, Description: "Create an annotated tag per released package"},
	"push":                    {Type: TypeBool, Description: "Push the release commit and tags"},
	"remote":                  {Type: TypeString, Description: "Remote used when pushing"},
	"parallelism":             {Type: TypeInt, Description: "Packages processed concurrently"},
	"default_heading_level":   {Type: TypeInt, Description: "Release heading level in new changelogs"},
	"publish.command":         {Type: TypeString, Description: "Publish command template over {Name, Version, Path}"},
	"publish.attempts":        {Type: TypeInt, Description: "Publish attempts per package on transient failures"},
	"publish.initial_backoff": {Type: TypeDuration, Description: "First wait between publish attempts"},
	"publish.max_backoff":     {Type: TypeDuration, Description: "Longest wait between publish attempts"},
	"index.kind": {
		Type:          TypeEnum,
		AllowedValues: []string{IndexHTTP, IndexDir, IndexNone},
		Description:   "How published versions are checked for visibility",
	},
	"index.url":             {Type: TypeString, Description: "HTTP index URL template over {Name, Version}"},
	"index.dir":             {Type: TypeString, Description: "Directory index holding one file per package"},
	"index.attempts":        {Type: TypeInt, Description: "Visibility checks before giving up"},
	"index.initial_backoff": {Type: TypeDuration, Description: "First wait between visibility checks"},
	"index.max_backoff":     {Type: TypeDuration, Description: "Longest wait between visibility checks"},
}

func init() {
	for path, schema := range KnownKeys {
		schema.Path = path
		KnownKeys[path] = schema
	}
}

// KeyNames returns the known configuration keys in sorted order.
func KeyNames() []string {
	names := make([]string, 0, len(KnownKeys))
	for name := range KnownKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownKey is returned when trying to access an unknown configuration key.
type ErrUnknownKey struct {
	Key string
}

func (e ErrUnknownKey) Error() string {
	return "unknown configuration key: " + e.Key
}

// GetKeySchema returns the schema for a known configuration key.
// Returns ErrUnknownKey if the key is not in the registry.
func GetKeySchema(path string) (ConfigKeySchema, error) {
	schema, ok := KnownKeys[path]
	if !ok {
		return ConfigKeySchema{}, ErrUnknownKey{Key: path}
	}
	return schema, nil
}

// ParsedValue represents a configuration value after type inference and validation.
type ParsedValue struct {
	Raw    string      // Original string input from user
	Parsed interface{} // Value converted to correct type
	Type   ConfigValueType
}

// ValidateValue validates a value against the schema for a given key.
// Returns the parsed value or an error with details about what's wrong.
func ValidateValue(key, value string) (ParsedValue, error) {
	schema, err := GetKeySchema(key)
	if err != nil {
		return ParsedValue{}, err
	}
	return validateAgainstSchema(schema, value)
}

// validateAgainstSchema validates a value against a specific schema.
func validateAgainstSchema(schema ConfigKeySchema, value string) (ParsedValue, error) {
	switch schema.Type {
	case TypeBool:
		return parseBoolValue(value)
	case TypeInt:
		return parseIntValue(value)
	case TypeDuration:
		return parseDurationValue(value)
	case TypeEnum:
		return parseEnumValue(schema, value)
	case TypeString:
		return ParsedValue{Raw: value, Parsed: value, Type: TypeString}, nil
	default:
		return ParsedValue{}, fmt.Errorf("unsupported type: %v", schema.Type)
	}
}

// parseBoolValue parses and validates a boolean value.
func parseBoolValue(value string) (ParsedValue, error) {
	switch strings.ToLower(value) {
	case "true":
		return ParsedValue{Raw: value, Parsed: true, Type: TypeBool}, nil
	case "false":
		return ParsedValue{Raw: value, Parsed: false, Type: TypeBool}, nil
	default:
		return ParsedValue{}, fmt.Errorf("invalid boolean: %q (expected true or false)", value)
	}
}

// parseIntValue parses and validates an integer value.
func parseIntValue(value string) (ParsedValue, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return ParsedValue{}, fmt.Errorf("invalid integer: %q", value)
	}
	return ParsedValue{Raw: value, Parsed: n, Type: TypeInt}, nil
}

// parseDurationValue parses and validates a duration value.
func parseDurationValue(value string) (ParsedValue, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return ParsedValue{}, fmt.Errorf("invalid duration: %q (examples: 500ms, 2s, 1m)", value)
	}
	return ParsedValue{Raw: value, Parsed: d.String(), Type: TypeDuration}, nil
}

// parseEnumValue validates a value against allowed enum options.
func parseEnumValue(schema ConfigKeySchema, value string) (ParsedValue, error) {
	for _, allowed := range schema.AllowedValues {
		if value == allowed {
			return ParsedValue{Raw: value, Parsed: value, Type: TypeEnum}, nil
		}
	}
	return ParsedValue{}, fmt.Errorf(
		"invalid value: %q (valid options: %s)",
		value,
		strings.Join(schema.AllowedValues, ", "),
	)
}
