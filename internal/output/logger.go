package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Logger is the sink components report progress to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}

// TerminalLogger writes leveled lines to a terminal, colored when enabled.
// It is safe for concurrent use.
type TerminalLogger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	debug   func(a ...interface{}) string
	warn    func(a ...interface{}) string
}

// NewTerminalLogger returns a logger writing to w. Debug lines are shown only
// when verbose is set.
func NewTerminalLogger(w io.Writer, verbose, useColor bool) *TerminalLogger {
	l := &TerminalLogger{w: w, verbose: verbose}
	debug := color.New(color.Faint)
	warn := color.New(color.FgYellow, color.Bold)
	if !useColor {
		debug.DisableColor()
		warn.DisableColor()
	} else {
		debug.EnableColor()
		warn.EnableColor()
	}
	l.debug = debug.SprintFunc()
	l.warn = warn.SprintFunc()
	return l
}

func (l *TerminalLogger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.write(l.debug("[debug] ") + fmt.Sprintf(format, args...))
}

func (l *TerminalLogger) Infof(format string, args ...interface{}) {
	l.write(fmt.Sprintf(format, args...))
}

func (l *TerminalLogger) Warnf(format string, args ...interface{}) {
	l.write(l.warn("warning: ") + fmt.Sprintf(format, args...))
}

func (l *TerminalLogger) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, strings.TrimRight(line, "\n")+"\n")
}
