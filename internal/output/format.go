// Package output provides terminal output for the smart-release CLI: an
// injectable Logger, spinners and the rendering of release plans.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ariel-frischer/smartrelease/internal/bump"
	"github.com/ariel-frischer/smartrelease/internal/graph"
)

// Palette holds the color functions used for rendering. The zero value
// renders plain text.
type Palette struct {
	header  func(a ...interface{}) string
	name    func(a ...interface{}) string
	version func(a ...interface{}) string
	dim     func(a ...interface{}) string
	major   func(a ...interface{}) string
	minor   func(a ...interface{}) string
	patch   func(a ...interface{}) string
}

// NewPalette returns a colored palette, or a plain one when useColor is false.
func NewPalette(useColor bool) Palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return Palette{
		header:  mk(color.FgCyan, color.Bold),
		name:    mk(color.FgWhite, color.Bold),
		version: mk(color.FgGreen),
		dim:     mk(color.Faint),
		major:   mk(color.FgRed, color.Bold),
		minor:   mk(color.FgYellow, color.Bold),
		patch:   mk(color.FgBlue),
	}
}

func (p Palette) paint(f func(a ...interface{}) string, s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

func (p Palette) level(l graph.BumpLevel) string {
	switch l {
	case graph.Major:
		return p.paint(p.major, l.String())
	case graph.Minor:
		return p.paint(p.minor, l.String())
	default:
		return p.paint(p.patch, l.String())
	}
}

// PrintExecutingCommand prints the command being executed with dim styling.
func PrintExecutingCommand(out io.Writer, p Palette, command string) {
	fmt.Fprintf(out, "%s %s\n", p.paint(p.header, "→ Running:"), p.paint(p.dim, command))
}

// RenderPlan prints the bump decisions and the publish order.
func RenderPlan(out io.Writer, p Palette, decisions []bump.Decision, order []string) {
	if len(decisions) == 0 {
		fmt.Fprintln(out, "Nothing to release: no package has changes since its last release.")
		return
	}

	width := 0
	for _, d := range decisions {
		width = max(width, len(d.Name))
	}

	fmt.Fprintln(out, p.paint(p.header, "Version bumps"))
	for _, d := range decisions {
		fmt.Fprintf(out, "  %s%s %s → %s  %s %s\n",
			p.paint(p.name, d.Name),
			strings.Repeat(" ", width-len(d.Name)),
			d.Current,
			p.paint(p.version, d.Next.String()),
			p.level(d.Level),
			p.paint(p.dim, "("+string(d.Reason)+")"),
		)
	}

	if len(order) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, p.paint(p.header, "Publish order"))
	for i, name := range order {
		fmt.Fprintf(out, "  %d. %s\n", i+1, name)
	}
}
