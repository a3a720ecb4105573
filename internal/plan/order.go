// Package plan orders the packages of a release so that every package is
// published after the packages it depends on.
package plan

import (
	"sort"

	"github.com/ariel-frischer/smartrelease/internal/graph"
)

// Order returns the selected packages in publish order: dependencies first,
// ties broken by ascending name. Only edges between selected packages are
// considered. A cycle among them fails with *CycleError and no order.
func Order(g *graph.Graph, selected []string) ([]string, error) {
	nodes, err := induce(g, selected)
	if err != nil {
		return nil, err
	}

	inDegree := computeInDegrees(nodes)
	ready := findRootNodes(inDegree)
	sort.Strings(ready)

	result := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, name)

		for _, dependent := range nodes[name].dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(result) != len(nodes) {
		return nil, findCycle(nodes)
	}
	return result, nil
}

type node struct {
	dependsOn  []string
	dependents []string
}

// induce builds the subgraph over the selected packages.
func induce(g *graph.Graph, selected []string) (map[string]*node, error) {
	nodes := make(map[string]*node, len(selected))
	for _, name := range selected {
		if _, ok := g.Index(name); !ok {
			return nil, &graph.UnknownPackageError{Name: name}
		}
		nodes[name] = &node{}
	}
	for name, n := range nodes {
		for _, dep := range g.Dependencies(name) {
			if _, ok := nodes[dep]; !ok {
				continue
			}
			n.dependsOn = append(n.dependsOn, dep)
			nodes[dep].dependents = append(nodes[dep].dependents, name)
		}
	}
	for _, n := range nodes {
		sort.Strings(n.dependents)
	}
	return nodes, nil
}

// computeInDegrees calculates the number of selected dependencies per node.
func computeInDegrees(nodes map[string]*node) map[string]int {
	inDegree := make(map[string]int, len(nodes))
	for name, n := range nodes {
		inDegree[name] = len(n.dependsOn)
	}
	return inDegree
}

// findRootNodes returns nodes with no dependencies (in-degree 0).
func findRootNodes(inDegree map[string]int) []string {
	var roots []string
	for name, degree := range inDegree {
		if degree == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

func insertSorted(names []string, name string) []string {
	i := sort.SearchStrings(names, name)
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return names
}

// findCycle returns the first cycle found by a name-ordered DFS.
func findCycle(nodes map[string]*node) error {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string][]string, len(nodes))
	for name, n := range nodes {
		sorted := append([]string(nil), n.dependsOn...)
		sort.Strings(sorted)
		deps[name] = sorted
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range names {
		if visited[name] {
			continue
		}
		if cycle := detectCycleDFS(name, deps, visited, recStack, nil); cycle != nil {
			return &CycleError{Path: cycle}
		}
	}
	return &CycleError{}
}

// detectCycleDFS performs depth-first search for cycle detection.
func detectCycleDFS(name string, deps map[string][]string, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, dep := range deps[name] {
		if !visited[dep] {
			if cycle := detectCycleDFS(dep, deps, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			return buildCyclePath(path, dep)
		}
	}

	recStack[name] = false
	return nil
}

// buildCyclePath constructs the cycle path from the DFS path.
func buildCyclePath(path []string, cycleStart string) []string {
	for i, name := range path {
		if name == cycleStart {
			return append(append([]string(nil), path[i:]...), cycleStart)
		}
	}
	return append(path, cycleStart)
}
