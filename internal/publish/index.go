package publish

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/ariel-frischer/smartrelease/internal/retry"
)

// Index answers whether a published version can be resolved by consumers.
type Index interface {
	Resolvable(ctx context.Context, t Target) (bool, error)
}

// Watcher is implemented by indexes that can wake a waiter early when the
// index changes.
type Watcher interface {
	WaitChange(ctx context.Context, t Target, d time.Duration) error
}

// HTTPIndex checks a URL rendered from a template over {Name, Version}.
// 200 means visible, 404 means not yet.
type HTTPIndex struct {
	tmpl   *template.Template
	Client *http.Client
}

// NewHTTPIndex parses the URL template.
func NewHTTPIndex(urlTemplate string) (*HTTPIndex, error) {
	tmpl, err := template.New("index").Option("missingkey=error").Parse(urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing index url: %w", err)
	}
	return &HTTPIndex{tmpl: tmpl, Client: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (x *HTTPIndex) Resolvable(ctx context.Context, t Target) (bool, error) {
	var sb strings.Builder
	if err := x.tmpl.Execute(&sb, t.data()); err != nil {
		return false, retry.Permanent(fmt.Errorf("rendering index url for %s: %w", t.Name, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sb.String(), nil)
	if err != nil {
		return false, retry.Permanent(fmt.Errorf("building index request: %w", err))
	}
	resp, err := x.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying index for %s: %w", t, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode >= 500:
		return false, nil
	default:
		return false, retry.Permanent(fmt.Errorf("index answered %s for %s", resp.Status, t))
	}
}

// DirIndex is a directory holding one file per package that lists its
// published versions, one per line.
type DirIndex struct {
	Dir string
}

func (x *DirIndex) Resolvable(_ context.Context, t Target) (bool, error) {
	f, err := os.Open(filepath.Join(x.Dir, t.Name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading index for %s: %w", t.Name, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v, err := semver.NewVersion(strings.TrimSpace(scanner.Text()))
		if err != nil {
			continue
		}
		if v.Equal(t.Version) {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("reading index for %s: %w", t.Name, err)
	}
	return false, nil
}

// WaitChange returns after d, or earlier when the package's index file is
// written. Without a usable watcher it degrades to a plain wait.
func (x *DirIndex) WaitChange(ctx context.Context, t Target, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var events chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err == nil {
		defer w.Close()
		if err := w.Add(x.Dir); err == nil {
			events = w.Events
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) == t.Name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				return nil
			}
		}
	}
}
