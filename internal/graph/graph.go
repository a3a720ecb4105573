// Package graph holds the workspace dependency graph as an index-addressed
// arena. Nodes are packages; an edge from A to B means A depends on B.
package graph

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Node is one workspace package.
type Node struct {
	Name    string
	Version *semver.Version
	// Path is the package directory relative to the workspace root.
	Path string
	// Publish is false for packages that are versioned but never published.
	Publish bool
	// Bump is the level decided by the resolver. None until resolved.
	Bump BumpLevel
}

// Graph is the dependency graph. The zero value is not usable; call New.
type Graph struct {
	nodes []Node
	index map[string]int
	deps  [][]int
	rdeps [][]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// DuplicateError is returned when a package name is added twice.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate package %q", e.Name)
}

// UnknownPackageError is returned for references to packages not in the graph.
type UnknownPackageError struct {
	Name string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("unknown package %q", e.Name)
}

// AddNode adds a package and returns its index.
func (g *Graph) AddNode(n Node) (int, error) {
	if _, ok := g.index[n.Name]; ok {
		return -1, &DuplicateError{Name: n.Name}
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.deps = append(g.deps, nil)
	g.rdeps = append(g.rdeps, nil)
	g.index[n.Name] = i
	return i, nil
}

// AddEdge records that from depends on to. Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) error {
	fi, ok := g.index[from]
	if !ok {
		return &UnknownPackageError{Name: from}
	}
	ti, ok := g.index[to]
	if !ok {
		return &UnknownPackageError{Name: to}
	}
	for _, d := range g.deps[fi] {
		if d == ti {
			return nil
		}
	}
	g.deps[fi] = append(g.deps[fi], ti)
	g.rdeps[ti] = append(g.rdeps[ti], fi)
	return nil
}

// Len returns the number of packages.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Index returns the index of a package by name.
func (g *Graph) Index(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Node returns the package at index i.
func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Lookup returns a package by name.
func (g *Graph) Lookup(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// SetBump records the decided bump level for a package.
func (g *Graph) SetBump(name string, level BumpLevel) error {
	i, ok := g.index[name]
	if !ok {
		return &UnknownPackageError{Name: name}
	}
	g.nodes[i].Bump = level
	return nil
}

// Names returns all package names sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns the names of the packages name depends on, sorted.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.deps[i])
}

// Dependents returns the names of the packages that depend on name, sorted.
func (g *Graph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.rdeps[i])
}

// DependencyClosure returns the given packages and everything they depend
// on transitively, sorted by name.
func (g *Graph) DependencyClosure(names []string) ([]string, error) {
	seen := make(map[int]bool)
	var stack []int
	for _, name := range names {
		i, ok := g.index[name]
		if !ok {
			return nil, &UnknownPackageError{Name: name}
		}
		stack = append(stack, i)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		stack = append(stack, g.deps[i]...)
	}
	idx := make([]int, 0, len(seen))
	for i := range seen {
		idx = append(idx, i)
	}
	return g.names(idx), nil
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.nodes[i].Name)
	}
	sort.Strings(out)
	return out
}
