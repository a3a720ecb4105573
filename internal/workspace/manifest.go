package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Manifest is an editable package.yml. Edits go through the YAML node tree so
// comments and key order survive.
type Manifest struct {
	path string
	doc  yaml.Node
}

// LoadManifest reads the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MetadataError{Path: path, Err: err}
	}
	m := &Manifest{path: path}
	if err := yaml.Unmarshal(data, &m.doc); err != nil {
		return nil, &MetadataError{Path: path, Err: err}
	}
	if m.root() == nil {
		return nil, &MetadataError{Path: path, Err: errors.New("manifest is not a mapping")}
	}
	return m, nil
}

// Path returns the manifest location.
func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) root() *yaml.Node {
	if m.doc.Kind != yaml.DocumentNode || len(m.doc.Content) == 0 {
		return nil
	}
	if n := m.doc.Content[0]; n.Kind == yaml.MappingNode {
		return n
	}
	return nil
}

// lookup returns the value node for key in a mapping node.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// SetVersion replaces the package version.
func (m *Manifest) SetVersion(v *semver.Version) {
	root := m.root()
	if n := lookup(root, "version"); n != nil {
		n.Kind = yaml.ScalarNode
		n.Tag = "!!str"
		n.Value = v.String()
		return
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "version"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.String()},
	)
}

// SetDependencyRequirement points the requirement on dependency name at v,
// keeping its operator. It reports whether the manifest changed.
func (m *Manifest) SetDependencyRequirement(name string, v *semver.Version) (bool, error) {
	deps := lookup(m.root(), "dependencies")
	if deps == nil || deps.Kind != yaml.MappingNode {
		return false, nil
	}
	dep := lookup(deps, name)
	if dep == nil {
		return false, nil
	}
	target := dep
	if dep.Kind == yaml.MappingNode {
		target = lookup(dep, "version")
		if target == nil {
			return false, nil
		}
	}
	if target.Kind != yaml.ScalarNode {
		return false, &MetadataError{Path: m.path, Err: fmt.Errorf("dependency %s: version is not a string", name)}
	}
	updated := UpdateRequirement(target.Value, v)
	if updated == target.Value {
		return false, nil
	}
	target.Value = updated
	target.Tag = "!!str"
	return true, nil
}

// Bytes encodes the manifest.
func (m *Manifest) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&m.doc); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.path, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.path, err)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest back to its path.
func (m *Manifest) Save() error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return &MetadataError{Path: m.path, Err: err}
	}
	return nil
}

var requirementOperators = []string{">=", "<=", "~>", "^", "~", "=", ">", "<"}

// UpdateRequirement rewrites a single-version requirement to v, keeping the
// operator. Wildcards and ranges are returned unchanged.
func UpdateRequirement(req string, v *semver.Version) string {
	trimmed := strings.TrimSpace(req)
	if trimmed == "" || strings.ContainsAny(trimmed, " ,|*xX") {
		return req
	}
	op := ""
	for _, candidate := range requirementOperators {
		if strings.HasPrefix(trimmed, candidate) {
			op = candidate
			break
		}
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, op))
	prefix := ""
	if strings.HasPrefix(rest, "v") {
		prefix = "v"
	}
	if _, err := semver.NewVersion(rest); err != nil {
		return req
	}
	return op + prefix + v.String()
}
