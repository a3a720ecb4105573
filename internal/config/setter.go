package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyKeyPath is returned for an empty dotted key.
var ErrEmptyKeyPath = errors.New("empty key path")

// ParseKeyPath splits a dotted key such as "index.kind" into its parts.
func ParseKeyPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyKeyPath
	}
	return strings.Split(path, "."), nil
}

// GetNestedValue returns the scalar node at keyPath, or nil if any part is missing.
func GetNestedValue(root *yaml.Node, keyPath []string) *yaml.Node {
	if len(keyPath) == 0 {
		return nil
	}
	node := documentMapping(root)
	for _, key := range keyPath {
		if node == nil || node.Kind != yaml.MappingNode {
			return nil
		}
		node = mappingValue(node, key)
	}
	return node
}

// SetNestedValue sets keyPath to value, creating intermediate mappings as needed.
// Existing keys keep their position and comments.
func SetNestedValue(root *yaml.Node, keyPath []string, value interface{}) error {
	if len(keyPath) == 0 {
		return ErrEmptyKeyPath
	}
	if root.Kind == 0 {
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	node := documentMapping(root)
	if node == nil || node.Kind != yaml.MappingNode {
		return errors.New("config root is not a mapping")
	}

	for i, key := range keyPath {
		last := i == len(keyPath)-1
		child := mappingValue(node, key)
		if last {
			var encoded yaml.Node
			if err := encoded.Encode(value); err != nil {
				return fmt.Errorf("encoding value for %s: %w", strings.Join(keyPath, "."), err)
			}
			if child != nil {
				child.Kind, child.Tag, child.Value, child.Style, child.Content =
					encoded.Kind, encoded.Tag, encoded.Value, encoded.Style, encoded.Content
				return nil
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &encoded)
			return nil
		}
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("%s is not a mapping", strings.Join(keyPath[:i+1], "."))
		}
		node = child
	}
	return nil
}

// SetConfigValue validates value against the key schema and writes it into
// the YAML file at path, creating the file and its directory when missing.
func SetConfigValue(path, key, value string) error {
	parsed, err := ValidateValue(key, value)
	if err != nil {
		return err
	}
	keyPath, err := ParseKeyPath(key)
	if err != nil {
		return err
	}

	var root yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := ValidateYAMLSyntaxFromBytes(data, path); err != nil {
			return err
		}
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := yaml.Unmarshal(data, &root); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := SetNestedValue(&root, keyPath, parsed.Parsed); err != nil {
		return err
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteTemplate writes the commented default config to path unless a file
// already exists there and force is false.
func WriteTemplate(path string, force bool) error {
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GetDefaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root == nil {
		return nil
	}
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		return root.Content[0]
	}
	return root
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
