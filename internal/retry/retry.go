// Package retry runs operations with bounded attempts and exponential
// backoff. It is used for registry publish calls and index propagation waits.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExitCodeExhausted is the process exit code when retries are used up.
const ExitCodeExhausted = 2

// State tracks attempts of one operation on one package.
type State struct {
	Package     string
	Stage       string
	Count       int
	MaxRetries  int
	LastAttempt time.Time
}

// CanRetry returns true if another attempt is allowed.
func (s *State) CanRetry() bool {
	return s.Count < s.MaxRetries
}

// Increment records an attempt. It fails with *ExhaustedError once the
// maximum is reached.
func (s *State) Increment() error {
	if !s.CanRetry() {
		return &ExhaustedError{
			Package:    s.Package,
			Stage:      s.Stage,
			Count:      s.Count,
			MaxRetries: s.MaxRetries,
		}
	}
	s.Count++
	s.LastAttempt = time.Now()
	return nil
}

// Reset clears the attempt count.
func (s *State) Reset() {
	s.Count = 0
	s.LastAttempt = time.Time{}
}

// ExhaustedError is returned when all attempts failed.
type ExhaustedError struct {
	Package    string
	Stage      string
	Count      int
	MaxRetries int
	// Err is the error of the last attempt, if any.
	Err error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("retries exhausted for %s:%s (%d/%d)", e.Package, e.Stage, e.Count, e.MaxRetries)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for exhausted retries.
func (e *ExhaustedError) ExitCode() int {
	return ExitCodeExhausted
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy bounds the attempts and the waits between them.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Multiplier grows the backoff after each failed attempt. Values below 1
	// are treated as 1.
	Multiplier float64
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the wait before attempt n+1, where n starts at 1.
func (p Policy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a Permanent error, the context is
// done, or the attempts are used up. The attempt number passed to fn starts
// at 1.
func Do(ctx context.Context, p Policy, st *State, fn func(attempt int) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if st == nil {
		st = &State{}
	}
	st.MaxRetries = p.MaxAttempts
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for {
		if err := st.Increment(); err != nil {
			var exhausted *ExhaustedError
			if errors.As(err, &exhausted) {
				exhausted.Err = lastErr
			}
			return err
		}
		lastErr = fn(st.Count)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if !st.CanRetry() {
			continue
		}
		if err := sleep(ctx, p.Backoff(st.Count)); err != nil {
			return fmt.Errorf("waiting to retry %s: %w", st.Stage, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
