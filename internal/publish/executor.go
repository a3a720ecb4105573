package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ariel-frischer/smartrelease/internal/output"
	"github.com/ariel-frischer/smartrelease/internal/retry"
)

// errNotVisible makes the index wait retry.
var errNotVisible = errors.New("version not visible yet")

// Error reports where a publish run stopped. Packages in Published are live;
// packages in Remaining were never attempted.
type Error struct {
	Published []string
	Failed    string
	Remaining []string
	Stage     string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Stage, e.Failed, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Executor publishes targets strictly one after another.
type Executor struct {
	Publisher Publisher
	// Index is checked after each publish. Nil skips the wait.
	Index         Index
	PublishPolicy retry.Policy
	IndexPolicy   retry.Policy
	Logger        output.Logger
	// Out receives spinner output. Nil discards it.
	Out  io.Writer
	Caps output.TerminalCapabilities
}

// Run publishes targets in the given order. A failure stops the run; the
// returned *Error names the published prefix and the untouched rest.
func (e *Executor) Run(ctx context.Context, targets []Target) ([]string, error) {
	logger := e.Logger
	if logger == nil {
		logger = output.Nop{}
	}

	published := make([]string, 0, len(targets))
	stop := func(i int, stage string, err error) ([]string, error) {
		remaining := make([]string, 0, len(targets)-i-1)
		for _, t := range targets[i+1:] {
			remaining = append(remaining, t.Name)
		}
		return published, &Error{
			Published: published,
			Failed:    targets[i].Name,
			Remaining: remaining,
			Stage:     stage,
			Err:       err,
		}
	}

	for i, t := range targets {
		logger.Infof("Publishing %s", t)
		if err := e.publish(ctx, logger, t); err != nil {
			return stop(i, StagePublish, err)
		}
		if e.Index != nil {
			if err := e.awaitIndex(ctx, logger, t); err != nil {
				return stop(i, StageIndex, err)
			}
		}
		published = append(published, t.Name)
	}
	return published, nil
}

func (e *Executor) publish(ctx context.Context, logger output.Logger, t Target) error {
	st := &retry.State{Package: t.Name, Stage: StagePublish}
	return retry.Do(ctx, e.PublishPolicy, st, func(attempt int) error {
		if attempt > 1 {
			logger.Warnf("Retrying publish of %s (attempt %d/%d)", t, attempt, st.MaxRetries)
		}
		err := e.Publisher.Publish(ctx, t)
		var transient *TransientError
		if err != nil && !errors.As(err, &transient) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (e *Executor) awaitIndex(ctx context.Context, logger output.Logger, t Target) error {
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	policy := e.IndexPolicy
	if w, ok := e.Index.(Watcher); ok {
		policy.Sleep = func(ctx context.Context, d time.Duration) error {
			return w.WaitChange(ctx, t, d)
		}
	}

	sp := output.StartSpinner(out, e.Caps, fmt.Sprintf("Waiting for %s to appear in the index", t))
	st := &retry.State{Package: t.Name, Stage: StageIndex}
	err := retry.Do(ctx, policy, st, func(attempt int) error {
		sp.Update(fmt.Sprintf("Waiting for %s to appear in the index (check %d/%d)", t, attempt, st.MaxRetries))
		ok, err := e.Index.Resolvable(ctx, t)
		if err != nil {
			logger.Debugf("index check for %s: %v", t, err)
			return err
		}
		if !ok {
			return errNotVisible
		}
		return nil
	})
	if err != nil {
		sp.Stop(false, fmt.Sprintf("%s did not become visible", t))
		return err
	}
	sp.Stop(true, fmt.Sprintf("%s is visible", t))
	return nil
}
