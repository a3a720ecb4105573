package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"

	"github.com/ariel-frischer/smartrelease/internal/bump"
	"github.com/ariel-frischer/smartrelease/internal/graph"
)

func TestRenderPlan(t *testing.T) {
	t.Parallel()

	decisions := []bump.Decision{
		{Name: "core", Current: semver.MustParse("1.2.0"), Next: semver.MustParse("2.0.0"), Level: graph.Major, Reason: bump.ReasonBreaking},
		{Name: "cli", Current: semver.MustParse("0.3.1"), Next: semver.MustParse("0.3.2"), Level: graph.Patch, Reason: bump.ReasonDependency},
	}

	var buf bytes.Buffer
	RenderPlan(&buf, NewPalette(false), decisions, []string{"core", "cli"})

	want := "Version bumps\n" +
		"  core 1.2.0 → 2.0.0  major (breaking change)\n" +
		"  cli  0.3.1 → 0.3.2  patch (dependency bumped)\n" +
		"\n" +
		"Publish order\n" +
		"  1. core\n" +
		"  2. cli\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderPlan_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderPlan(&buf, Palette{}, nil, nil)
	assert.Contains(t, buf.String(), "Nothing to release")
}

func TestTerminalLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		verbose bool
		want    string
	}{
		"quiet":   {verbose: false, want: "publishing a\nwarning: slow index\n"},
		"verbose": {verbose: true, want: "[debug] resolved 3 tags\npublishing a\nwarning: slow index\n"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			l := NewTerminalLogger(&buf, tt.verbose, false)
			l.Debugf("resolved %d tags", 3)
			l.Infof("publishing %s\n", "a")
			l.Warnf("slow index")
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSpinner_NonTerminal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sp := StartSpinner(&buf, TerminalCapabilities{}, "waiting for a 1.0.0")
	sp.Update("still waiting")
	sp.Stop(true, "a 1.0.0 is visible")
	assert.Equal(t, "waiting for a 1.0.0\n[OK] a 1.0.0 is visible\n", buf.String())
}

func TestRenderDiff(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderDiff(&buf, Palette{}, "CHANGELOG.md", "a\nb\nc\nd\ne\nf\ng\n", "a\nb\nc\nD\ne\nf\ng\n")

	got := buf.String()
	assert.True(t, strings.HasPrefix(got, "CHANGELOG.md\n  ... 1 unchanged lines\n  b\n  c\n"), got)
	assert.Contains(t, got, "- d\n+ D\n  e\n  f\n  ... 1 unchanged lines\n")
}

func TestRenderDiff_Unchanged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	RenderDiff(&buf, Palette{}, "CHANGELOG.md", "same\n", "same\n")
	assert.Empty(t, buf.String())
}
