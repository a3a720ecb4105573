// Package bump decides version increments per package and propagates them
// across the workspace dependency graph.
package bump

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/ariel-frischer/smartrelease/internal/commit"
	"github.com/ariel-frischer/smartrelease/internal/graph"
)

// Reason explains a bump decision.
type Reason string

const (
	ReasonNone       Reason = "no changes"
	ReasonBreaking   Reason = "breaking change"
	ReasonFeature    Reason = "new feature"
	ReasonChanges    Reason = "changes"
	ReasonDependency Reason = "dependency bumped"
	ReasonOverride   Reason = "requested"
)

// Input is everything the decision for one package depends on.
type Input struct {
	// Commits are the meaningful commits since the last release.
	Commits []commit.Commit
	// Breaking is an external signal that the public API changed.
	Breaking bool
	// Override is a minimum level requested by the user.
	Override graph.BumpLevel
}

// Decide returns the level implied by a package's own changes. Breaking
// changes of pre-1.0 packages bump the minor version.
func Decide(current *semver.Version, in Input) (graph.BumpLevel, Reason) {
	level, reason := graph.None, ReasonNone
	switch {
	case in.Breaking || commit.HasBreaking(in.Commits):
		level, reason = graph.Major, ReasonBreaking
		if current != nil && current.Major() == 0 {
			level = graph.Minor
		}
	case hasFeature(in.Commits):
		level, reason = graph.Minor, ReasonFeature
	case len(in.Commits) > 0:
		level, reason = graph.Patch, ReasonChanges
	}
	if in.Override > level {
		level, reason = in.Override, ReasonOverride
	}
	return level, reason
}

func hasFeature(commits []commit.Commit) bool {
	for _, c := range commits {
		if c.IsFeature() {
			return true
		}
	}
	return false
}

// Decision is the resolved outcome for one package.
type Decision struct {
	Name    string
	Current *semver.Version
	Next    *semver.Version
	Level   graph.BumpLevel
	Reason  Reason
}

// Resolve decides the level of every candidate and raises dependents of
// bumped packages to at least Patch until nothing changes. Levels are
// recorded on the graph. Decisions with level None are dropped; the rest are
// sorted by name.
func Resolve(g *graph.Graph, candidates []string, inputs map[string]Input) ([]Decision, error) {
	levels := make(map[string]graph.BumpLevel, len(candidates))
	reasons := make(map[string]Reason, len(candidates))
	for _, name := range candidates {
		node, ok := g.Lookup(name)
		if !ok {
			return nil, &graph.UnknownPackageError{Name: name}
		}
		levels[name], reasons[name] = Decide(node.Version, inputs[name])
	}

	order := dependencyFirst(g, candidates)
	for changed := true; changed; {
		changed = false
		for _, name := range order {
			if levels[name] >= graph.Patch {
				continue
			}
			for _, dep := range g.Dependencies(name) {
				if lvl, ok := levels[dep]; ok && lvl > graph.None {
					levels[name], reasons[name] = graph.Patch, ReasonDependency
					changed = true
					break
				}
			}
		}
	}

	var out []Decision
	for _, name := range order {
		if err := g.SetBump(name, levels[name]); err != nil {
			return nil, err
		}
		if levels[name] == graph.None {
			continue
		}
		node, _ := g.Lookup(name)
		out = append(out, Decision{
			Name:    name,
			Current: node.Version,
			Next:    NextVersion(node.Version, levels[name]),
			Level:   levels[name],
			Reason:  reasons[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// dependencyFirst orders candidates so that dependencies come before their
// dependents where the graph allows it. Cycles do not fail here; the planner
// reports them.
func dependencyFirst(g *graph.Graph, candidates []string) []string {
	in := make(map[string]bool, len(candidates))
	for _, name := range candidates {
		in[name] = true
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	visited := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range g.Dependencies(name) {
			if in[dep] {
				visit(dep)
			}
		}
		out = append(out, name)
	}
	for _, name := range sorted {
		visit(name)
	}
	return out
}

// NextVersion applies a bump level to a version. None returns v unchanged.
func NextVersion(v *semver.Version, level graph.BumpLevel) *semver.Version {
	if v == nil {
		v = semver.New(0, 0, 0, "", "")
	}
	var next semver.Version
	switch level {
	case graph.Major:
		next = v.IncMajor()
	case graph.Minor:
		next = v.IncMinor()
	case graph.Patch:
		next = v.IncPatch()
	default:
		return v
	}
	return &next
}
