package publish

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariel-frischer/smartrelease/internal/retry"
)

func target(name, version string) Target {
	return Target{Name: name, Version: semver.MustParse(version)}
}

// fakePublisher fails according to a per-package script of errors.
type fakePublisher struct {
	mu     sync.Mutex
	script map[string][]error
	calls  []string
}

func (f *fakePublisher) Publish(_ context.Context, t Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t.Name)
	errs := f.script[t.Name]
	if len(errs) == 0 {
		return nil
	}
	f.script[t.Name] = errs[1:]
	return errs[0]
}

// fakeIndex becomes visible after a number of checks per package.
type fakeIndex struct {
	after  map[string]int
	checks map[string]int
}

func (f *fakeIndex) Resolvable(_ context.Context, t Target) (bool, error) {
	f.checks[t.Name]++
	return f.checks[t.Name] > f.after[t.Name], nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func policy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Sleep: noSleep}
}

func TestExecutor_PublishesInOrder(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{script: map[string][]error{}}
	idx := &fakeIndex{after: map[string]int{"a": 2}, checks: map[string]int{}}
	ex := &Executor{Publisher: pub, Index: idx, PublishPolicy: policy(1), IndexPolicy: policy(5)}

	published, err := ex.Run(context.Background(), []Target{target("a", "1.0.0"), target("b", "0.2.0")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, published)
	assert.Equal(t, []string{"a", "b"}, pub.calls)
	assert.Equal(t, 3, idx.checks["a"])
	assert.Equal(t, 1, idx.checks["b"])
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	a := target("a", "1.0.0")
	pub := &fakePublisher{script: map[string][]error{
		"a": {&TransientError{Target: a, Err: errors.New("503")}, &TransientError{Target: a, Err: errors.New("timeout")}},
	}}
	ex := &Executor{Publisher: pub, PublishPolicy: policy(3)}

	published, err := ex.Run(context.Background(), []Target{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, published)
	assert.Len(t, pub.calls, 3)
}

func TestExecutor_StopsAtFailure(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		script    map[string][]error
		index     Index
		wantStage string
		wantCalls []string
	}{
		"permanent publish failure is not retried": {
			script:    map[string][]error{"b": {errors.New("unauthorized")}},
			wantStage: StagePublish,
			wantCalls: []string{"a", "b"},
		},
		"transient failures exhaust the budget": {
			script: map[string][]error{"b": {
				&TransientError{Err: errors.New("1")}, &TransientError{Err: errors.New("2")}, &TransientError{Err: errors.New("3")},
			}},
			wantStage: StagePublish,
			wantCalls: []string{"a", "b", "b", "b"},
		},
		"index never shows the version": {
			script:    map[string][]error{},
			index:     &fakeIndex{after: map[string]int{"b": 100}, checks: map[string]int{}},
			wantStage: StageIndex,
			wantCalls: []string{"a", "b"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			pub := &fakePublisher{script: tt.script}
			ex := &Executor{Publisher: pub, Index: tt.index, PublishPolicy: policy(3), IndexPolicy: policy(3)}

			published, err := ex.Run(context.Background(), []Target{
				target("a", "1.0.0"), target("b", "1.0.0"), target("c", "1.0.0"), target("d", "1.0.0"),
			})

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, []string{"a"}, published)
			assert.Equal(t, []string{"a"}, perr.Published)
			assert.Equal(t, "b", perr.Failed)
			assert.Equal(t, []string{"c", "d"}, perr.Remaining)
			assert.Equal(t, tt.wantStage, perr.Stage)
			assert.Equal(t, tt.wantCalls, pub.calls)
		})
	}
}

func TestCommandPublisher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]struct {
		command       string
		wantErr       bool
		wantTransient bool
		wantOut       string
	}{
		"success renders template in package dir": {
			command: `echo "{{.Name}}@{{.Version}}" && pwd`,
			wantOut: "core@1.4.0\n" + dir + "\n",
		},
		"transient failure": {
			command:       `echo "upload failed: 503 Service Unavailable" >&2; exit 1`,
			wantErr:       true,
			wantTransient: true,
		},
		"permanent failure": {
			command: `echo "403 forbidden" >&2; exit 1`,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p, err := NewCommandPublisher(tt.command)
			require.NoError(t, err)
			var stdout bytes.Buffer
			p.Stdout = &stdout

			err = p.Publish(context.Background(), Target{Name: "core", Version: semver.MustParse("1.4.0"), Path: dir})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOut, stdout.String())
				return
			}
			require.Error(t, err)
			var transient *TransientError
			assert.Equal(t, tt.wantTransient, errors.As(err, &transient))
		})
	}
}

func TestNewCommandPublisher_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewCommandPublisher("  ")
	require.Error(t, err)
	_, err = NewCommandPublisher("upload {{.Name")
	require.Error(t, err)
}

func TestHTTPIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/core/1.0.0":
			w.WriteHeader(http.StatusOK)
		case "/core/2.0.0":
			w.WriteHeader(http.StatusNotFound)
		case "/core/3.0.0":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)

	idx, err := NewHTTPIndex(srv.URL + "/{{.Name}}/{{.Version}}")
	require.NoError(t, err)

	tests := map[string]struct {
		target  Target
		want    bool
		wantErr bool
	}{
		"visible":          {target: target("core", "1.0.0"), want: true},
		"not yet":          {target: target("core", "2.0.0")},
		"server error":     {target: target("core", "3.0.0")},
		"permanent denial": {target: target("other", "1.0.0"), wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := idx.Resolvable(context.Background(), tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core"), []byte("0.9.0\n1.0.0\ngarbage\n"), 0o644))
	idx := &DirIndex{Dir: dir}

	ok, err := idx.Resolvable(context.Background(), target("core", "1.0.0"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Resolvable(context.Background(), target("core", "1.1.0"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = idx.Resolvable(context.Background(), target("missing", "1.0.0"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirIndex_WaitChangeWakesOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	idx := &DirIndex{Dir: dir}
	tgt := target("core", "1.0.0")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "core"), []byte("1.0.0\n"), 0o644)
	}()

	start := time.Now()
	require.NoError(t, idx.WaitChange(context.Background(), tgt, 10*time.Second))
	assert.Less(t, time.Since(start), 5*time.Second)

	ok, err := idx.Resolvable(context.Background(), tgt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirIndex_WaitChangeHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&DirIndex{Dir: t.TempDir()}).WaitChange(ctx, target("core", "1.0.0"), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
