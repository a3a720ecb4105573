package graph

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChain(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := g.AddNode(Node{Name: name, Version: semver.MustParse("1.0.0"), Publish: true})
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("a", "c"))
	return g
}

func TestGraph_Edges(t *testing.T) {
	t.Parallel()

	g := newChain(t)
	require.NoError(t, g.AddEdge("a", "b"))

	assert.Equal(t, []string{"b", "c"}, g.Dependencies("a"))
	assert.Equal(t, []string{"a", "b"}, g.Dependents("c"))
	assert.Empty(t, g.Dependencies("d"))
	assert.Nil(t, g.Dependencies("missing"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Names())
}

func TestGraph_Errors(t *testing.T) {
	t.Parallel()

	g := newChain(t)

	_, err := g.AddNode(Node{Name: "a"})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)

	var unknown *UnknownPackageError
	require.ErrorAs(t, g.AddEdge("a", "zz"), &unknown)
	assert.Equal(t, "zz", unknown.Name)
	require.ErrorAs(t, g.SetBump("zz", Patch), &unknown)
}

func TestGraph_DependencyClosure(t *testing.T) {
	t.Parallel()

	g := newChain(t)

	tests := map[string]struct {
		names   []string
		want    []string
		wantErr bool
	}{
		"root pulls everything":  {names: []string{"a"}, want: []string{"a", "b", "c"}},
		"leaf is alone":          {names: []string{"c"}, want: []string{"c"}},
		"disjoint roots":         {names: []string{"d", "b"}, want: []string{"b", "c", "d"}},
		"unknown package errors": {names: []string{"nope"}, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := g.DependencyClosure(tt.names)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBumpLevel(t *testing.T) {
	t.Parallel()

	assert.True(t, None < Patch && Patch < Minor && Minor < Major)
	assert.Equal(t, Minor, Max(Patch, Minor))
	assert.Equal(t, Major, Max(Major, None))
	assert.Equal(t, "minor", Minor.String())

	lvl, err := ParseBumpLevel("MAJOR")
	require.NoError(t, err)
	assert.Equal(t, Major, lvl)

	_, err = ParseBumpLevel("huge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch")
}
