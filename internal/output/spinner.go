package output

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Spinner shows an animated status line on terminals and a plain line otherwise.
type Spinner struct {
	s       *spinner.Spinner
	w       io.Writer
	symbols ProgressSymbols
	caps    TerminalCapabilities
}

// StartSpinner starts a spinner with msg. On non-terminals msg is printed once.
func StartSpinner(w io.Writer, caps TerminalCapabilities, msg string) *Spinner {
	sp := &Spinner{w: w, symbols: SelectSymbols(caps), caps: caps}
	if !caps.IsTTY {
		fmt.Fprintln(w, msg)
		return sp
	}
	sp.s = spinner.New(spinner.CharSets[sp.symbols.SpinnerSet], 100*time.Millisecond, spinner.WithWriter(w))
	sp.s.Suffix = " " + msg
	sp.s.Start()
	return sp
}

// Update replaces the spinner message.
func (sp *Spinner) Update(msg string) {
	if sp.s == nil {
		return
	}
	sp.s.Lock()
	sp.s.Suffix = " " + msg
	sp.s.Unlock()
}

// Stop stops the spinner and prints a final status line.
func (sp *Spinner) Stop(ok bool, msg string) {
	if sp.s != nil {
		sp.s.Stop()
	}
	mark := sp.symbols.Checkmark
	paint := color.New(color.FgGreen, color.Bold)
	if !ok {
		mark = sp.symbols.Failure
		paint = color.New(color.FgRed, color.Bold)
	}
	if sp.caps.SupportsColor {
		paint.EnableColor()
	} else {
		paint.DisableColor()
	}
	fmt.Fprintf(sp.w, "%s %s\n", paint.Sprint(mark), msg)
}
