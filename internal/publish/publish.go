// Package publish pushes released packages to a registry one at a time and
// waits until each new version is resolvable before moving on, so that
// dependents never reference a version the registry cannot serve yet.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/semver/v3"

	"github.com/ariel-frischer/smartrelease/internal/output"
)

// Pipeline stages reported in errors.
const (
	StagePublish = "publish"
	StageIndex   = "index"
)

// Target is one package version to publish.
type Target struct {
	Name    string
	Version *semver.Version
	// Path is the package directory.
	Path string
}

func (t Target) String() string {
	return t.Name + " v" + t.Version.String()
}

// templateData is what publish and index templates can reference.
type templateData struct {
	Name    string
	Version string
	Path    string
}

func (t Target) data() templateData {
	return templateData{Name: t.Name, Version: t.Version.String(), Path: t.Path}
}

// Publisher uploads one package version.
type Publisher interface {
	Publish(ctx context.Context, t Target) error
}

// TransientError is a publish failure worth retrying, such as a timeout or
// a server error reported by the registry.
type TransientError struct {
	Target Target
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure publishing %s: %v", e.Target, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// transientOutput matches command output that indicates a retryable failure.
var transientOutput = regexp.MustCompile(`(?i)(timed? ?out|connection (refused|reset)|temporar(y|ily)|try again|too many requests|rate limit|\b50[0234]\b|service unavailable|bad gateway)`)

// CommandPublisher runs a shell command rendered from a template over
// {Name, Version, Path} in the package directory.
type CommandPublisher struct {
	tmpl *template.Template
	// Shell runs the rendered command with "-c". Defaults to sh.
	Shell  string
	Stdout io.Writer
	Stderr io.Writer
	// Palette styles the command echo written to Stderr.
	Palette output.Palette
}

// NewCommandPublisher parses the command template.
func NewCommandPublisher(command string) (*CommandPublisher, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("publish command is empty")
	}
	tmpl, err := template.New("publish").Option("missingkey=error").Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parsing publish command: %w", err)
	}
	return &CommandPublisher{tmpl: tmpl, Shell: "sh"}, nil
}

// Render returns the command that would run for t.
func (p *CommandPublisher) Render(t Target) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, t.data()); err != nil {
		return "", fmt.Errorf("rendering publish command for %s: %w", t.Name, err)
	}
	return sb.String(), nil
}

// Publish runs the command. Failures whose output looks transient are
// returned as *TransientError.
func (p *CommandPublisher) Publish(ctx context.Context, t Target) error {
	command, err := p.Render(t)
	if err != nil {
		return err
	}

	if p.Stderr != nil {
		output.PrintExecutingCommand(p.Stderr, p.Palette, command)
	}

	var captured bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Shell, "-c", command)
	cmd.Dir = t.Path
	cmd.Stdout = teeTo(p.Stdout, &captured)
	cmd.Stderr = teeTo(p.Stderr, &captured)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("publishing %s: %w", t, ctx.Err())
		}
		failure := fmt.Errorf("%w: %s", err, lastLine(captured.String()))
		if transientOutput.MatchString(captured.String()) {
			return &TransientError{Target: t, Err: failure}
		}
		return fmt.Errorf("publishing %s: %w", t, failure)
	}
	return nil
}

func teeTo(w io.Writer, captured *bytes.Buffer) io.Writer {
	if w == nil {
		return captured
	}
	return io.MultiWriter(w, captured)
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
