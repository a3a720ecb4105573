package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffContext is the number of unchanged lines shown around a change.
const diffContext = 2

// RenderDiff prints a line diff of a file preview. Long unchanged runs are
// folded. Nothing is printed when before and after are equal.
func RenderDiff(out io.Writer, p Palette, path, before, after string) {
	if before == after {
		return
	}
	fmt.Fprintln(out, p.paint(p.header, path))

	chunks := diff.Do(before, after)
	for i, c := range chunks {
		lines := splitDiffLines(c.Text)
		switch c.Type {
		case diffmatchpatch.DiffInsert:
			for _, l := range lines {
				fmt.Fprintln(out, p.paint(p.version, "+ "+l))
			}
		case diffmatchpatch.DiffDelete:
			for _, l := range lines {
				fmt.Fprintln(out, p.paint(p.major, "- "+l))
			}
		default:
			printContext(out, p, lines, i > 0, i < len(chunks)-1)
		}
	}
	fmt.Fprintln(out)
}

// printContext prints unchanged lines next to a change and folds the rest.
func printContext(out io.Writer, p Palette, lines []string, afterChange, beforeChange bool) {
	head, tail := 0, 0
	if afterChange {
		head = diffContext
	}
	if beforeChange {
		tail = diffContext
	}
	if head+tail >= len(lines) {
		for _, l := range lines {
			fmt.Fprintln(out, p.paint(p.dim, "  "+l))
		}
		return
	}
	for _, l := range lines[:head] {
		fmt.Fprintln(out, p.paint(p.dim, "  "+l))
	}
	fmt.Fprintln(out, p.paint(p.dim, fmt.Sprintf("  ... %d unchanged lines", len(lines)-head-tail)))
	for _, l := range lines[len(lines)-tail:] {
		fmt.Fprintln(out, p.paint(p.dim, "  "+l))
	}
}

func splitDiffLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
