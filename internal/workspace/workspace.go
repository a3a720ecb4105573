// Package workspace reads the package metadata of a multi-package repository
// and edits package manifests in place.
//
// A workspace root holds workspace.yml listing member directories (glob
// patterns allowed). Each member directory holds a package.yml:
//
//	name: core
//	version: 1.2.0
//	publish: true
//	dependencies:
//	  util: ^0.3.0
//	  log:
//	    version: ~1.0.0
//
// A root with only a package.yml is a workspace of one package.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/ariel-frischer/smartrelease/internal/graph"
)

const (
	// DefaultWorkspaceFile is the workspace definition at the repository root.
	DefaultWorkspaceFile = "workspace.yml"
	// ManifestFile is the per-package manifest.
	ManifestFile = "package.yml"
)

// MetadataError reports unreadable or invalid package metadata.
type MetadataError struct {
	Package string
	Path    string
	Err     error
}

func (e *MetadataError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("package %s (%s): %v", e.Package, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// Package is one workspace member.
type Package struct {
	Name    string
	Version *semver.Version
	// Dir is the package directory relative to the workspace root, slash
	// separated. "." for a single-package workspace.
	Dir     string
	Publish bool
	// Dependencies maps workspace package names to version requirements.
	// Dependencies outside the workspace are not listed.
	Dependencies map[string]string
	// ManifestPath is the absolute path of package.yml.
	ManifestPath string
}

// Workspace is the set of packages under one root.
type Workspace struct {
	Root     string
	Packages []*Package
	byName   map[string]*Package
}

type workspaceFile struct {
	Members []string `yaml:"members"`
}

type manifestFile struct {
	Name         string                    `yaml:"name"`
	Version      string                    `yaml:"version"`
	Publish      *bool                     `yaml:"publish"`
	Dependencies map[string]dependencySpec `yaml:"dependencies"`
}

// dependencySpec accepts either a requirement string or a mapping with a
// version key.
type dependencySpec struct {
	Version string `yaml:"version"`
	Path    string `yaml:"path"`
}

func (d *dependencySpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		d.Version = n.Value
		return nil
	}
	type plain dependencySpec
	return n.Decode((*plain)(d))
}

// Load reads the workspace rooted at root. workspaceFile is relative to root;
// empty means DefaultWorkspaceFile.
func Load(root, workspaceFile string) (*Workspace, error) {
	if workspaceFile == "" {
		workspaceFile = DefaultWorkspaceFile
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	dirs, err := memberDirs(abs, filepath.Join(abs, workspaceFile))
	if err != nil {
		return nil, err
	}

	ws := &Workspace{Root: abs, byName: make(map[string]*Package)}
	var all []*Package
	for _, dir := range dirs {
		pkg, raw, err := readManifest(abs, dir)
		if err != nil {
			return nil, err
		}
		if other, ok := ws.byName[pkg.Name]; ok {
			return nil, &MetadataError{
				Package: pkg.Name,
				Path:    pkg.ManifestPath,
				Err:     fmt.Errorf("name already used by %s", other.ManifestPath),
			}
		}
		ws.byName[pkg.Name] = pkg
		all = append(all, pkg)
		pkg.Dependencies = map[string]string{}
		for name, spec := range raw.Dependencies {
			pkg.Dependencies[name] = spec.Version
		}
	}

	// Keep only dependencies on workspace members.
	for _, pkg := range all {
		for name := range pkg.Dependencies {
			if _, ok := ws.byName[name]; !ok {
				delete(pkg.Dependencies, name)
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	ws.Packages = all
	return ws, nil
}

// memberDirs expands the workspace member patterns into package directories
// relative to root.
func memberDirs(root, wsPath string) ([]string, error) {
	data, err := os.ReadFile(wsPath)
	if errors.Is(err, fs.ErrNotExist) {
		if _, err := os.Stat(filepath.Join(root, ManifestFile)); err == nil {
			return []string{"."}, nil
		}
		return nil, &MetadataError{Path: root, Err: fmt.Errorf("neither %s nor %s found", filepath.Base(wsPath), ManifestFile)}
	}
	if err != nil {
		return nil, &MetadataError{Path: wsPath, Err: err}
	}

	var wf workspaceFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, &MetadataError{Path: wsPath, Err: err}
	}
	if len(wf.Members) == 0 {
		return nil, &MetadataError{Path: wsPath, Err: errors.New("no members listed")}
	}

	seen := map[string]bool{}
	var dirs []string
	for _, pattern := range wf.Members {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, &MetadataError{Path: wsPath, Err: fmt.Errorf("member pattern %q: %w", pattern, err)}
		}
		if len(matches) == 0 {
			return nil, &MetadataError{Path: wsPath, Err: fmt.Errorf("member pattern %q matches nothing", pattern)}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, err := os.Stat(filepath.Join(m, ManifestFile)); err != nil {
				continue
			}
			rel, err := filepath.Rel(root, m)
			if err != nil {
				return nil, &MetadataError{Path: m, Err: err}
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				dirs = append(dirs, rel)
			}
		}
	}
	return dirs, nil
}

func readManifest(root, dir string) (*Package, *manifestFile, error) {
	path := filepath.Join(root, filepath.FromSlash(dir), ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &MetadataError{Path: path, Err: err}
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, nil, &MetadataError{Path: path, Err: err}
	}
	if strings.TrimSpace(mf.Name) == "" {
		return nil, nil, &MetadataError{Path: path, Err: errors.New("missing name")}
	}
	version, err := semver.StrictNewVersion(strings.TrimPrefix(mf.Version, "v"))
	if err != nil {
		return nil, nil, &MetadataError{Package: mf.Name, Path: path, Err: fmt.Errorf("invalid version %q: %w", mf.Version, err)}
	}
	publish := true
	if mf.Publish != nil {
		publish = *mf.Publish
	}
	return &Package{
		Name:         mf.Name,
		Version:      version,
		Dir:          dir,
		Publish:      publish,
		ManifestPath: path,
	}, &mf, nil
}

// Package returns a package by name.
func (w *Workspace) Package(name string) (*Package, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// PackageAt returns the package whose directory contains path, preferring
// the most specific directory.
func (w *Workspace) PackageAt(path string) (*Package, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	rel, err := filepath.Rel(w.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	rel = filepath.ToSlash(rel)

	var best *Package
	for _, p := range w.Packages {
		if p.Dir == "." || rel == p.Dir || strings.HasPrefix(rel, p.Dir+"/") {
			if best == nil || len(p.Dir) > len(best.Dir) || best.Dir == "." {
				best = p
			}
		}
	}
	return best, best != nil
}

// Graph builds the dependency graph of the workspace.
func (w *Workspace) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, p := range w.Packages {
		if _, err := g.AddNode(graph.Node{Name: p.Name, Version: p.Version, Path: p.Dir, Publish: p.Publish}); err != nil {
			return nil, err
		}
	}
	for _, p := range w.Packages {
		deps := make([]string, 0, len(p.Dependencies))
		for name := range p.Dependencies {
			deps = append(deps, name)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if err := g.AddEdge(p.Name, dep); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
