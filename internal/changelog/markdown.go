package changelog

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// Markers embedded in generated markdown. They render invisibly on most hosts.
const (
	readOnlyMarker     = "<csr-read-only-do-not-edit/>"
	generatedMarker    = "<csr-generated/>"
	segmentBreakMarker = "<csr-segment-break/>"
	unknownOpenMarker  = "<csr-unknown>"
	unknownCloseMarker = "<csr-unknown/>"
	detailsOpen        = "<details><summary>view details</summary>"
	detailsClose       = "</details>"
	breakingSuffix     = " (BREAKING)"
	clippyTitle        = "Thanks Clippy"
	statisticsTitle    = "Commit Statistics"
	detailsTitle       = "Commit Details"
	conventionalURL    = "https://www.conventionalcommits.org"
	clippyURL          = "https://github.com/rust-lang/rust-clippy"
	shortIDLen         = 7
)

const day = 24 * time.Hour

// kindTitles maps conventional commit kinds to their section headline.
var kindTitles = map[string]string{
	"feat":     "New Features",
	"fix":      "Bug Fixes",
	"chore":    "Chore",
	"docs":     "Documentation",
	"refactor": "Refactor",
	"perf":     "Performance",
	"test":     "Test",
	"style":    "Style",
	"build":    "Build",
	"ci":       "CI",
	"revert":   "Reverted",
}

var (
	titleKinds = func() map[string]string {
		m := make(map[string]string, len(kindTitles))
		for k, t := range kindTitles {
			m[t] = k
		}
		return m
	}()

	otherKindTitle = regexp.MustCompile(`^Other \(([^()]+)\)$`)
	idLine         = regexp.MustCompile(`^<csr-id-([0-9a-f]{40})/>$`)
	generatedLine  = regexp.MustCompile(`^ - <csr-id-([0-9a-f]{40})/> (.*)$`)
	releaseTitle   = regexp.MustCompile(`^((?i:unreleased)|v?\d+\.\d+\.\d+[^\s()\[\]]*)(?: \((\d{4}-\d{2}-\d{2})\))?$`)
	keepATitle     = regexp.MustCompile(`^\[((?i:unreleased)|v?\d+\.\d+\.\d+[^\s()\[\]]*)\](?: - (\d{4}-\d{2}-\d{2}))?$`)
	clippyLine     = regexp.MustCompile(`^\[Clippy\]\(` + regexp.QuoteMeta(clippyURL) + `\) helped (\d+) times? to make code idiomatic\.$`)
	countLine      = regexp.MustCompile(`^ - (\d+) commits? contributed to the release(?: over the course of (?:(\d+) calendar days?|(\S+)))?\.$`)
	conventionalLn = regexp.MustCompile(`^ - (\d+) commits? (?:was|were) understood as \[conventional\]\(` + regexp.QuoteMeta(conventionalURL) + `\)\.$`)
	issuesLine     = regexp.MustCompile(`^ - (\d+) unique issues? (?:was|were) worked on\.$`)
	categoryLine   = regexp.MustCompile(`^ \* \*\*(.+)\*\*$`)
	detailLine     = regexp.MustCompile(`^    - <csr-id-([0-9a-f]{40})/> (.*) \(([0-9a-f]+)\)$`)
)

// kindTitle returns the headline for a conventional kind.
func kindTitle(kind string, breaking bool) string {
	title, ok := kindTitles[kind]
	if !ok {
		title = "Other (" + kind + ")"
	}
	if breaking {
		title += breakingSuffix
	}
	return title
}

// titleKind is the inverse of kindTitle.
func titleKind(title string) (kind string, breaking bool, ok bool) {
	if strings.HasSuffix(title, breakingSuffix) {
		breaking = true
		title = strings.TrimSuffix(title, breakingSuffix)
	}
	if kind, ok := titleKinds[title]; ok {
		return kind, breaking, true
	}
	if m := otherKindTitle.FindStringSubmatch(title); m != nil {
		if _, known := kindTitles[m[1]]; !known {
			return m[1], breaking, true
		}
	}
	return "", false, false
}

// kindPriority orders conventional kinds: feat, fix, then the rest alphabetically.
func kindPriority(kind string) int {
	switch kind {
	case "feat":
		return 0
	case "fix":
		return 1
	default:
		return 2
	}
}

// conventionalLess orders groupings: breaking first, then by kind priority.
func conventionalLess(a, b Conventional) bool {
	if a.IsBreaking != b.IsBreaking {
		return a.IsBreaking
	}
	pa, pb := kindPriority(a.Kind), kindPriority(b.Kind)
	if pa != pb {
		return pa < pb
	}
	return a.Kind < b.Kind
}

// segmentRank is the fixed output order of machine segments.
func segmentRank(s Segment) int {
	switch s.(type) {
	case Conventional:
		return 0
	case Clippy:
		return 1
	case Statistics:
		return 2
	case Details:
		return 3
	default:
		return 4
	}
}

// orderSegments keeps User segments at their positions and permutes the
// machine segments among the remaining slots into their fixed order.
func orderSegments(segs []Segment) []Segment {
	var machine []Segment
	for _, s := range segs {
		if _, ok := s.(User); !ok {
			machine = append(machine, s)
		}
	}
	sort.SliceStable(machine, func(i, j int) bool {
		ri, rj := segmentRank(machine[i]), segmentRank(machine[j])
		if ri != rj {
			return ri < rj
		}
		if ri == 0 {
			return conventionalLess(machine[i].(Conventional), machine[j].(Conventional))
		}
		return false
	})

	out := make([]Segment, 0, len(segs))
	next := 0
	for _, s := range segs {
		if _, ok := s.(User); ok {
			out = append(out, s)
			continue
		}
		out = append(out, machine[next])
		next++
	}
	return out
}

// needsBreak reports whether a User segment written after prev would be read
// back as part of prev. Conventional groupings extend to the next heading at
// their level and adjacent User text is read as one segment.
func needsBreak(prev Segment, u User, level int) bool {
	switch prev.(type) {
	case User:
		return true
	case Conventional:
		first, _, _ := strings.Cut(u.Markdown, "\n")
		if first == unknownOpenMarker {
			return false
		}
		l, _, ok := parseHeading(first)
		return !ok || l > level
	default:
		return false
	}
}

// heading returns a markdown heading line without the trailing newline.
func heading(level int, title string) string {
	return strings.Repeat("#", level) + " " + title
}

// parseHeading splits a line into heading level and title. Trailing
// whitespace and a carriage return are not part of the title.
func parseHeading(line string) (int, string, bool) {
	line = strings.TrimRight(line, " \t\r\n")
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, line[level+1:], true
}

// isFence reports whether line opens or closes a fenced code block.
func isFence(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return false
	}
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// shortID abbreviates a commit id for display.
func shortID(id plumbing.Hash) string {
	return id.String()[:shortIDLen]
}

// plural picks the singular or plural form for n.
func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
