package changelog

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// WriteTo encodes the changelog as markdown. Sections are written in stored
// order; within a release, machine segments are written in their fixed order.
// Text produced here parses back into an equal document.
func (c *ChangeLog) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for _, s := range c.Sections {
		switch s := s.(type) {
		case *Verbatim:
			sb.WriteString(s.Text)
			if s.Generated {
				sb.WriteString(generatedMarker + "\n\n")
			}
		case *Release:
			writeRelease(&sb, s)
		}
	}
	n, err := io.WriteString(w, sb.String())
	if err != nil {
		return int64(n), fmt.Errorf("writing changelog: %w", err)
	}
	return int64(n), nil
}

// writeRelease writes one release: heading, removed ids, segments, unknown text.
func writeRelease(sb *strings.Builder, r *Release) {
	sb.WriteString(heading(r.HeadingLevel, releaseHeadline(r)))
	sb.WriteString("\n\n")

	writeIDs(sb, r.RemovedMessages)

	sub := r.HeadingLevel + 1
	var prev Segment
	for _, seg := range orderSegments(r.Segments) {
		switch seg := seg.(type) {
		case User:
			if needsBreak(prev, seg, sub) {
				sb.WriteString(segmentBreakMarker + "\n\n")
			}
			sb.WriteString(seg.Markdown)
			sb.WriteString("\n")
		case Conventional:
			writeConventional(sb, sub, seg)
		case Clippy:
			writeClippy(sb, sub, seg.Data.Value)
		case Statistics:
			writeStatistics(sb, sub, seg.Data.Value)
		case Details:
			writeDetails(sb, sub, seg.Data.Value)
		}
		prev = seg
	}

	if r.Unknown != "" {
		sb.WriteString(unknownOpenMarker + "\n")
		sb.WriteString(r.Unknown)
		sb.WriteString(unknownCloseMarker + "\n\n")
	}
}

// releaseHeadline renders "v1.2.3 (2024-01-02)" or "Unreleased".
func releaseHeadline(r *Release) string {
	name := r.Name.String()
	if r.Date == nil {
		return name
	}
	return name + " (" + r.Date.UTC().Format(time.DateOnly) + ")"
}

// writeIDs writes one id marker per line followed by a blank line.
func writeIDs(sb *strings.Builder, ids []plumbing.Hash) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		fmt.Fprintf(sb, "<csr-id-%s/>\n", id)
	}
	sb.WriteString("\n")
}

func writeConventional(sb *strings.Builder, level int, c Conventional) {
	sb.WriteString(heading(level, kindTitle(c.Kind, c.IsBreaking)))
	sb.WriteString("\n\n")
	writeIDs(sb, c.Removed)
	for _, m := range c.Messages {
		switch m := m.(type) {
		case GeneratedMessage:
			fmt.Fprintf(sb, " - <csr-id-%s/> %s\n", m.ID, m.Title)
		case UserMessage:
			sb.WriteString(m.Markdown)
			sb.WriteString("\n")
		}
	}
	if len(c.Messages) > 0 {
		sb.WriteString("\n")
	}
}

// writeGeneratedHeader writes the heading and read-only marker shared by all
// machine blocks.
func writeGeneratedHeader(sb *strings.Builder, level int, title string) {
	sb.WriteString(heading(level, title))
	sb.WriteString("\n\n" + readOnlyMarker + "\n\n")
}

func writeClippy(sb *strings.Builder, level int, c ThanksClippy) {
	writeGeneratedHeader(sb, level, clippyTitle)
	fmt.Fprintf(sb, "[Clippy](%s) helped %d %s to make code idiomatic.\n\n",
		clippyURL, c.Count, plural(c.Count, "time", "times"))
}

func writeStatistics(sb *strings.Builder, level int, s CommitStatistics) {
	writeGeneratedHeader(sb, level, statisticsTitle)
	fmt.Fprintf(sb, " - %d %s contributed to the release%s.\n",
		s.Count, plural(s.Count, "commit", "commits"), formatDuration(s.Duration))
	fmt.Fprintf(sb, " - %d %s understood as [conventional](%s).\n",
		s.ConventionalCount, plural(s.ConventionalCount, "commit was", "commits were"), conventionalURL)
	fmt.Fprintf(sb, " - %d unique %s worked on.\n\n",
		s.UniqueIssuesCount, plural(s.UniqueIssuesCount, "issue was", "issues were"))
}

// formatDuration renders whole days as calendar days and anything else with
// Go duration syntax so that it parses back exactly.
func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return ""
	case d > 0 && d%day == 0:
		days := int(d / day)
		return fmt.Sprintf(" over the course of %d calendar %s", days, plural(days, "day", "days"))
	default:
		return " over the course of " + d.String()
	}
}

func writeDetails(sb *strings.Builder, level int, d CommitDetails) {
	writeGeneratedHeader(sb, level, detailsTitle)
	sb.WriteString(detailsOpen + "\n\n")
	categories := make([]CategoryMessages, len(d.CommitsByCategory))
	copy(categories, d.CommitsByCategory)
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Category.Less(categories[j].Category)
	})
	for _, cm := range categories {
		fmt.Fprintf(sb, " * **%s**\n", cm.Category)
		for _, m := range cm.Messages {
			fmt.Fprintf(sb, "    - <csr-id-%s/> %s (%s)\n", m.ID, m.Title, shortID(m.ID))
		}
	}
	sb.WriteString(detailsClose + "\n\n")
}
