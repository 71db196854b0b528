package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"chartci/internal/storage"
)

// fakeExec answers shell steps without spawning processes.
type fakeExec struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]int
	hook  func(cmd Command)
}

func (f *fakeExec) Run(ctx context.Context, cmd Command) (*Result, error) {
	line := cmd.String()
	if len(cmd.Args) > 0 {
		line = cmd.Args[len(cmd.Args)-1]
	}
	f.mu.Lock()
	f.calls = append(f.calls, line)
	f.mu.Unlock()

	if code, ok := f.fail[line]; ok {
		return &Result{ExitCode: code, Combined: "boom"}, fmt.Errorf("exit status %d", code)
	}
	if f.hook != nil {
		f.hook(cmd)
	}
	return &Result{Combined: "ok: " + line}, nil
}

func (f *fakeExec) ran(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// coverageHook creates the coverage directory the way the real profile step would.
func coverageHook(t *testing.T, workdir string) func(Command) {
	return func(cmd Command) {
		if strings.Contains(cmd.Args[len(cmd.Args)-1], "coverprofile") {
			dir := filepath.Join(workdir, "coverage")
			assert.NoError(t, os.MkdirAll(dir, 0o755))
			assert.NoError(t, os.WriteFile(filepath.Join(dir, "coverage.out"), []byte("mode: set\n"), 0o644))
		}
	}
}

type recordedAction struct {
	mu    sync.Mutex
	calls []StepContext
	err   error
}

func (a *recordedAction) Run(_ context.Context, sc StepContext) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, sc)
	return "action ran", a.err
}

func newTestRunner(t *testing.T, exec CommandRunner) (*Runner, *storage.ArtifactStore) {
	t.Helper()
	store := storage.NewArtifactStore()
	r := NewRunner(exec, store, discardLogger())
	r.Workdir = t.TempDir()
	r.ArtifactDir = t.TempDir()
	r.Logs = storage.NewLogStorage(filepath.Join(t.TempDir(), "logs"))
	return r, store
}
