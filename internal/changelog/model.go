package changelog

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultHeader is the title written when a changelog is created from scratch.
const DefaultHeader = `# Changelog

All notable changes to this package will be documented in this file.

The format is generated from [Conventional Commits](https://www.conventionalcommits.org)
and this package adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

`

// ChangeLog is a changelog document: an ordered list of sections in document order.
type ChangeLog struct {
	Sections []Section
}

// Section is either a *Verbatim or a *Release.
type Section interface {
	isSection()
}

// Verbatim is raw markdown the tool does not interpret, such as the title.
type Verbatim struct {
	Text string
	// Generated marks text written by the tool. It is encoded as a marker
	// line after the text.
	Generated bool
}

// Release is one version's entry in the changelog.
type Release struct {
	// HeadingLevel is the number of '#' characters in the release heading.
	HeadingLevel int
	// Date is the release date, stored as midnight UTC. Nil when unknown.
	Date *time.Time
	// Name is the released version or Unreleased.
	Name Version
	// RemovedMessages are commits folded into this release that must never be
	// classified again.
	RemovedMessages []plumbing.Hash
	// Segments are the typed blocks of the release body.
	Segments []Segment
	// Unknown is raw trailing text that could not be categorized.
	Unknown string
}

func (*Verbatim) isSection() {}
func (*Release) isSection()  {}

// Segment is one of User, Conventional, Clippy, Statistics or Details.
type Segment interface {
	isSegment()
}

// User is hand-authored markdown. It is never modified by the tool.
type User struct {
	Markdown string
}

// Conventional groups the commits of one conventional commit kind.
type Conventional struct {
	// Kind is the conventional commit type, e.g. "feat" or "fix".
	Kind       string
	IsBreaking bool
	// Removed lists commits that were deleted from this grouping by hand.
	Removed  []plumbing.Hash
	Messages []ConventionalMessage
}

// Clippy thanks clippy for the lint fixes it prompted.
type Clippy struct {
	Data Data[ThanksClippy]
}

// Statistics summarizes the commits of a release.
type Statistics struct {
	Data Data[CommitStatistics]
}

// Details lists every commit of a release by category.
type Details struct {
	Data Data[CommitDetails]
}

func (User) isSegment()         {}
func (Conventional) isSegment() {}
func (Clippy) isSegment()       {}
func (Statistics) isSegment()   {}
func (Details) isSegment()      {}

// ConventionalMessage is either a GeneratedMessage or a UserMessage.
type ConventionalMessage interface {
	isConventionalMessage()
}

// GeneratedMessage is a commit subject written by the generator.
type GeneratedMessage struct {
	ID    plumbing.Hash
	Title string
}

// UserMessage is hand-written text inside a conventional grouping.
type UserMessage struct {
	Markdown string
}

func (GeneratedMessage) isConventionalMessage() {}
func (UserMessage) isConventionalMessage()      {}

// DataKind tells whether machine segment content is still as generated.
// Only DataGenerated exists today; an edited state would be added here.
type DataKind int

const (
	// DataGenerated marks content produced by the generator.
	DataGenerated DataKind = iota
)

// Data wraps machine-produced segment content with its provenance.
type Data[T any] struct {
	Kind  DataKind
	Value T
}

// Generated wraps v as freshly generated content.
func Generated[T any](v T) Data[T] {
	return Data[T]{Kind: DataGenerated, Value: v}
}

// IsGenerated reports whether the generator may replace this content.
func (d Data[T]) IsGenerated() bool {
	return d.Kind == DataGenerated
}

// ThanksClippy counts commits that applied clippy suggestions.
type ThanksClippy struct {
	Count int
}

// CommitStatistics summarizes the commits of a release.
type CommitStatistics struct {
	// Count is the number of commits in the release.
	Count int
	// Duration is the time between the oldest and the newest commit.
	// Zero means the duration is not reported.
	Duration time.Duration
	// ConventionalCount is the number of commits with a recognized kind.
	ConventionalCount int
	// UniqueIssuesCount is the number of distinct issue references.
	UniqueIssuesCount int
}

// CommitDetails holds commits grouped by category, ordered by Category.Less.
type CommitDetails struct {
	CommitsByCategory []CategoryMessages
}

// CategoryMessages is one category and its messages in first-seen order.
type CategoryMessages struct {
	Category Category
	Messages []Message
}

// Message is a commit title and id listed in the details block.
type Message struct {
	Title string
	ID    plumbing.Hash
}

// Category is either Uncategorized (the zero value) or an issue reference.
type Category struct {
	issue string
}

// Uncategorized is the category for commits without issue references.
func Uncategorized() Category {
	return Category{}
}

// Issue is the category for commits referencing the given issue, e.g. "42".
func Issue(ref string) Category {
	return Category{issue: ref}
}

// IsUncategorized reports whether c is the Uncategorized category.
func (c Category) IsUncategorized() bool {
	return c.issue == ""
}

// IssueRef returns the issue reference, or "" for Uncategorized.
func (c Category) IssueRef() string {
	return c.issue
}

// Less defines the total order used for output: Uncategorized first, then
// issue references in ascending lexical order.
func (c Category) Less(o Category) bool {
	if c.IsUncategorized() {
		return !o.IsUncategorized()
	}
	if o.IsUncategorized() {
		return false
	}
	return c.issue < o.issue
}

// String returns the label shown in the details block.
func (c Category) String() string {
	if c.IsUncategorized() {
		return "Uncategorized"
	}
	return "#" + c.issue
}

// Add appends a message to its category, creating the category at its
// ordered position when needed.
func (d *CommitDetails) Add(c Category, m Message) {
	i := sort.Search(len(d.CommitsByCategory), func(i int) bool {
		return !d.CommitsByCategory[i].Category.Less(c)
	})
	if i < len(d.CommitsByCategory) && d.CommitsByCategory[i].Category == c {
		d.CommitsByCategory[i].Messages = append(d.CommitsByCategory[i].Messages, m)
		return
	}
	d.CommitsByCategory = append(d.CommitsByCategory, CategoryMessages{})
	copy(d.CommitsByCategory[i+1:], d.CommitsByCategory[i:])
	d.CommitsByCategory[i] = CategoryMessages{Category: c, Messages: []Message{m}}
}

// InvariantError reports a document that violates the model's invariants.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "changelog invariant violated: " + e.Message
}

// Validate checks the document invariants: at most one Unreleased release.
func (c *ChangeLog) Validate() error {
	unreleased := 0
	for _, s := range c.Sections {
		if r, ok := s.(*Release); ok && r.Name.IsUnreleased() {
			unreleased++
		}
	}
	if unreleased > 1 {
		return &InvariantError{Message: fmt.Sprintf("found %d Unreleased sections, at most one is allowed", unreleased)}
	}
	return nil
}

// Releases returns the release sections in document order.
func (c *ChangeLog) Releases() []*Release {
	var out []*Release
	for _, s := range c.Sections {
		if r, ok := s.(*Release); ok {
			out = append(out, r)
		}
	}
	return out
}

// FindRelease returns the release with the given name and its section index,
// or nil and -1.
func (c *ChangeLog) FindRelease(v Version) (*Release, int) {
	for i, s := range c.Sections {
		if r, ok := s.(*Release); ok && r.Name.Equal(v) {
			return r, i
		}
	}
	return nil, -1
}

// RemovedIDs collects every commit id that was folded into a release or
// removed from a conventional grouping.
func (c *ChangeLog) RemovedIDs() map[plumbing.Hash]struct{} {
	ids := make(map[plumbing.Hash]struct{})
	for _, r := range c.Releases() {
		for _, id := range r.RemovedMessages {
			ids[id] = struct{}{}
		}
		for _, seg := range r.Segments {
			if conv, ok := seg.(Conventional); ok {
				for _, id := range conv.Removed {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}

// Equal reports structural equality of two documents. Dates are compared
// as instants and nil slices equal empty ones.
func (c *ChangeLog) Equal(o *ChangeLog) bool {
	var a, b []Section
	if c != nil {
		a = c.Sections
	}
	if o != nil {
		b = o.Sections
	}
	return slices.EqualFunc(a, b, sectionEqual)
}

func sectionEqual(a, b Section) bool {
	switch a := a.(type) {
	case *Verbatim:
		b, ok := b.(*Verbatim)
		if !ok || a == nil || b == nil {
			return ok && a == b
		}
		return *a == *b
	case *Release:
		b, ok := b.(*Release)
		if !ok || a == nil || b == nil {
			return ok && a == b
		}
		return a.Equal(b)
	default:
		return a == nil && b == nil
	}
}

// Equal reports structural equality of two releases.
func (r *Release) Equal(o *Release) bool {
	return r.HeadingLevel == o.HeadingLevel &&
		datesEqual(r.Date, o.Date) &&
		r.Name.Equal(o.Name) &&
		slices.Equal(r.RemovedMessages, o.RemovedMessages) &&
		slices.EqualFunc(r.Segments, o.Segments, segmentEqual) &&
		r.Unknown == o.Unknown
}

func datesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func segmentEqual(a, b Segment) bool {
	switch a := a.(type) {
	case Conventional:
		b, ok := b.(Conventional)
		return ok && a.Kind == b.Kind && a.IsBreaking == b.IsBreaking &&
			slices.Equal(a.Removed, b.Removed) &&
			slices.EqualFunc(a.Messages, b.Messages, func(x, y ConventionalMessage) bool { return x == y })
	case Details:
		b, ok := b.(Details)
		return ok && a.Data.Kind == b.Data.Kind &&
			slices.EqualFunc(a.Data.Value.CommitsByCategory, b.Data.Value.CommitsByCategory, func(x, y CategoryMessages) bool {
				return x.Category == y.Category && slices.Equal(x.Messages, y.Messages)
			})
	default:
		return a == b
	}
}

// Markdown encodes the document as a string.
func (c *ChangeLog) Markdown() string {
	var sb strings.Builder
	_, _ = c.WriteTo(&sb)
	return sb.String()
}
