package changelog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariel-frischer/smartrelease/internal/commit"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultHeadingLevel is used for a new release when the document has no
// release to take the level from.
const DefaultHeadingLevel = 2

// GenerateInput describes the release to write into a changelog.
type GenerateInput struct {
	// Version is the release to create or update. Unreleased is allowed.
	Version Version
	// Date is the release date. Only the calendar day in UTC is kept.
	Date *time.Time
	// Commits are the classified commits of the release, in any order.
	Commits []commit.Commit
	// HeadingLevel overrides DefaultHeadingLevel for a new release.
	HeadingLevel int
}

// GenerateResult tells what Generate did to the document.
type GenerateResult struct {
	Release  *Release
	Created  bool
	Promoted bool
}

// Generate merges the commits of a release into the document.
//
// An existing release with the same version is updated in place. Otherwise an
// Unreleased section is promoted to the version, or a new release is inserted
// before the first existing one. Hand-written text is kept and previously
// generated content is replaced, so running Generate twice with the same
// input leaves the document unchanged.
func (c *ChangeLog) Generate(in GenerateInput) (*GenerateResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	date := dayOf(in.Date)
	commits := freshCommits(in.Commits, c.RemovedIDs())
	fresh := NewSegments(commits)

	if r, _ := c.FindRelease(in.Version); r != nil {
		if date != nil {
			r.Date = date
		}
		r.Segments = mergeSegments(r.Segments, fresh)
		return &GenerateResult{Release: r}, nil
	}

	if !in.Version.IsUnreleased() {
		if r, _ := c.FindRelease(Unreleased()); r != nil {
			r.Name = in.Version
			r.Date = date
			r.Segments = mergeSegments(r.Segments, fresh)
			return &GenerateResult{Release: r, Promoted: true}, nil
		}
	}

	r := &Release{
		HeadingLevel: c.headingLevel(in.HeadingLevel),
		Date:         date,
		Name:         in.Version,
		Segments:     orderSegments(fresh),
	}
	if len(r.Segments) == 0 {
		r.Segments = nil
	}
	c.insertRelease(r)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("inserting release %s: %w", in.Version, err)
	}
	return &GenerateResult{Release: r, Created: true}, nil
}

// NewSegments computes the machine segments for a set of commits, newest
// commit first within each segment.
func NewSegments(commits []commit.Commit) []Segment {
	if len(commits) == 0 {
		return nil
	}
	sorted := make([]commit.Commit, len(commits))
	copy(sorted, commits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.After(sorted[j].Time)
	})

	var segs []Segment
	for _, conv := range conventionalGroups(sorted) {
		segs = append(segs, conv)
	}
	if n := clippyCount(sorted); n > 0 {
		segs = append(segs, Clippy{Data: Generated(ThanksClippy{Count: n})})
	}
	segs = append(segs,
		Statistics{Data: Generated(statistics(sorted))},
		Details{Data: Generated(details(sorted))},
	)
	return orderSegments(segs)
}

func conventionalGroups(commits []commit.Commit) []Conventional {
	type key struct {
		kind     string
		breaking bool
	}
	var (
		order  []key
		groups = map[key]*Conventional{}
	)
	for _, cm := range commits {
		if !cm.IsConventional() {
			continue
		}
		k := key{kind: cm.Kind, breaking: cm.IsBreaking}
		g, ok := groups[k]
		if !ok {
			g = &Conventional{Kind: cm.Kind, IsBreaking: cm.IsBreaking}
			groups[k] = g
			order = append(order, k)
		}
		g.Messages = append(g.Messages, GeneratedMessage{ID: cm.ID, Title: cm.Subject})
	}
	out := make([]Conventional, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return conventionalLess(out[i], out[j])
	})
	return out
}

func clippyCount(commits []commit.Commit) int {
	n := 0
	for _, cm := range commits {
		if strings.Contains(strings.ToLower(cm.Title), "thanks clippy") {
			n++
		}
	}
	return n
}

func statistics(commits []commit.Commit) CommitStatistics {
	stats := CommitStatistics{Count: len(commits)}
	oldest, newest := commits[0].Time, commits[0].Time
	issues := map[string]struct{}{}
	for _, cm := range commits {
		if cm.Time.Before(oldest) {
			oldest = cm.Time
		}
		if cm.Time.After(newest) {
			newest = cm.Time
		}
		if cm.IsConventional() {
			stats.ConventionalCount++
		}
		for _, ref := range cm.IssueRefs {
			issues[ref] = struct{}{}
		}
	}
	stats.Duration = newest.Sub(oldest) / day * day
	stats.UniqueIssuesCount = len(issues)
	return stats
}

func details(commits []commit.Commit) CommitDetails {
	var d CommitDetails
	for _, cm := range commits {
		msg := Message{Title: cm.Title, ID: cm.ID}
		if len(cm.IssueRefs) == 0 {
			d.Add(Uncategorized(), msg)
			continue
		}
		seen := map[string]bool{}
		for _, ref := range cm.IssueRefs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			d.Add(Issue(ref), msg)
		}
	}
	return d
}

// mergeSegments keeps hand-written content of an existing release and
// replaces everything the generator owns.
func mergeSegments(existing, fresh []Segment) []Segment {
	freshConv := map[string]int{}
	for i, s := range fresh {
		if conv, ok := s.(Conventional); ok {
			freshConv[convKey(conv)] = i
		}
	}
	used := map[int]bool{}

	var out []Segment
	for _, s := range existing {
		switch s := s.(type) {
		case User:
			out = append(out, s)
		case Conventional:
			i, ok := freshConv[convKey(s)]
			if ok {
				used[i] = true
			}
			var gen Conventional
			if ok {
				gen = fresh[i].(Conventional)
			}
			if merged, keep := mergeConventional(s, gen); keep {
				out = append(out, merged)
			}
		case Clippy:
			if !s.Data.IsGenerated() {
				out = append(out, s)
			}
		case Statistics:
			if !s.Data.IsGenerated() {
				out = append(out, s)
			}
		case Details:
			if !s.Data.IsGenerated() {
				out = append(out, s)
			}
		}
	}
	for i, s := range fresh {
		if !used[i] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return orderSegments(out)
}

func convKey(c Conventional) string {
	if c.IsBreaking {
		return c.Kind + "!"
	}
	return c.Kind
}

// mergeConventional replaces the generated messages of old with those of gen
// while keeping removed ids and user messages.
func mergeConventional(old, gen Conventional) (Conventional, bool) {
	removed := make(map[plumbing.Hash]struct{}, len(old.Removed))
	for _, id := range old.Removed {
		removed[id] = struct{}{}
	}
	merged := Conventional{Kind: old.Kind, IsBreaking: old.IsBreaking, Removed: old.Removed}
	for _, m := range gen.Messages {
		if g, ok := m.(GeneratedMessage); ok {
			if _, skip := removed[g.ID]; skip {
				continue
			}
		}
		merged.Messages = append(merged.Messages, m)
	}
	for _, m := range old.Messages {
		if _, ok := m.(UserMessage); ok {
			merged.Messages = append(merged.Messages, m)
		}
	}
	keep := len(merged.Messages) > 0 || len(merged.Removed) > 0
	return merged, keep
}

// freshCommits drops commits that a release or grouping marked as removed.
func freshCommits(commits []commit.Commit, removed map[plumbing.Hash]struct{}) []commit.Commit {
	out := make([]commit.Commit, 0, len(commits))
	for _, cm := range commits {
		if _, ok := removed[cm.ID]; ok {
			continue
		}
		out = append(out, cm)
	}
	return out
}

func dayOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func (c *ChangeLog) headingLevel(fallback int) int {
	if rs := c.Releases(); len(rs) > 0 {
		return rs[0].HeadingLevel
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultHeadingLevel
}

// insertRelease places r before the first release, after any preamble. An
// empty document gets the default header first.
func (c *ChangeLog) insertRelease(r *Release) {
	if len(c.Sections) == 0 {
		c.Sections = []Section{&Verbatim{Text: DefaultHeader, Generated: true}, r}
		return
	}
	at := len(c.Sections)
	for i, s := range c.Sections {
		if _, ok := s.(*Release); ok {
			at = i
			break
		}
	}
	c.Sections = append(c.Sections, nil)
	copy(c.Sections[at+1:], c.Sections[at:])
	c.Sections[at] = r
}
