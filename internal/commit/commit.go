// Package commit classifies git commit messages using the conventional
// commit format.
package commit

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	headerPattern   = regexp.MustCompile(`^([A-Za-z][\w-]*)(?:\(([^()\r\n]*)\))?(!)?:[ \t]+(\S.*)$`)
	breakingFooter  = regexp.MustCompile(`(?m)^BREAKING[ -]CHANGE:`)
	issueRefPattern = regexp.MustCompile(`#(\d+)`)
)

// Raw is a commit as read from history.
type Raw struct {
	ID      plumbing.Hash
	Message string
	Time    time.Time
}

// Commit is a classified commit.
type Commit struct {
	ID plumbing.Hash
	// Title is the first line of the message.
	Title string
	// Subject is the title without the conventional type prefix.
	Subject string
	// Body is everything after the title, trimmed.
	Body string
	Time time.Time

	// Kind is the lowercased conventional type, or "" when the title does not
	// follow the conventional format.
	Kind       string
	Scope      string
	IsBreaking bool
	// IssueRefs are the distinct issue numbers referenced as "#N", in order
	// of first appearance.
	IssueRefs []string
}

// IsConventional reports whether the commit follows the conventional format.
func (c Commit) IsConventional() bool {
	return c.Kind != ""
}

// IsFeature reports whether the commit adds a feature.
func (c Commit) IsFeature() bool {
	return c.Kind == "feat"
}

// IsReleaseBookkeeping reports whether the commit was created by a release,
// such as a version bump or changelog update.
func (c Commit) IsReleaseBookkeeping() bool {
	if c.Kind == "chore" && c.Scope == "release" {
		return true
	}
	return strings.HasPrefix(c.Title, "Release ")
}

// Parse classifies a single raw commit. Malformed messages are not an error:
// they yield a non-conventional commit whose subject is the title.
func Parse(raw Raw) Commit {
	msg := strings.ReplaceAll(raw.Message, "\r\n", "\n")
	title, body, _ := strings.Cut(strings.TrimLeft(msg, "\n"), "\n")
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)

	c := Commit{
		ID:      raw.ID,
		Title:   title,
		Subject: title,
		Body:    body,
		Time:    raw.Time,
	}

	if m := headerPattern.FindStringSubmatch(title); m != nil {
		c.Kind = strings.ToLower(m[1])
		c.Scope = strings.TrimSpace(m[2])
		c.IsBreaking = m[3] == "!"
		c.Subject = strings.TrimSpace(m[4])
	}
	if breakingFooter.MatchString(body) {
		c.IsBreaking = true
	}

	c.IssueRefs = issueRefs(title + "\n" + body)
	return c
}

// Classify parses raw commits in order, skipping ids in exclude.
func Classify(raws []Raw, exclude map[plumbing.Hash]struct{}) []Commit {
	out := make([]Commit, 0, len(raws))
	for _, raw := range raws {
		if _, ok := exclude[raw.ID]; ok {
			continue
		}
		out = append(out, Parse(raw))
	}
	return out
}

// WithoutBookkeeping drops release bookkeeping commits.
func WithoutBookkeeping(commits []Commit) []Commit {
	out := make([]Commit, 0, len(commits))
	for _, c := range commits {
		if !c.IsReleaseBookkeeping() {
			out = append(out, c)
		}
	}
	return out
}

// HasBreaking reports whether any commit is a breaking change.
func HasBreaking(commits []Commit) bool {
	for _, c := range commits {
		if c.IsBreaking {
			return true
		}
	}
	return false
}

func issueRefs(text string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range issueRefPattern.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		refs = append(refs, m[1])
	}
	return refs
}
