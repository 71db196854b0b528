package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// Command is one process invocation.
type Command struct {
	Program string
	Args    []string
	Env     map[string]string // added on top of the inherited environment
	Dir     string
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// CommandRunner runs a command to completion or until ctx ends.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Executor is responsible for running steps (commands) as local processes
type Executor struct {
	// Scrub lists inherited environment variables that are never passed
	// to child processes unless a Command sets them explicitly.
	Scrub []string
}

func NewExecutor(scrub ...string) *Executor {
	return &Executor{Scrub: scrub}
}

// ShellCommand wraps a step's run line in `sh -c`.
func ShellCommand(run string) Command {
	return Command{Program: "sh", Args: []string{"-c", run}}
}

// Run executes the command and returns its output. A nonzero exit is
// reported as an error together with a populated Result.
func (e *Executor) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = e.environ(c.Env)
	// children of `sh -c` may keep the pipes open after a kill
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr, combined bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, &combined)
	cmd.Stderr = io.MultiWriter(&stderr, &combined)

	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
	}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("timed out: %w", ctxErr)
		}
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, err
	}
	res.ExitCode = -1
	return res, err
}

func (e *Executor) environ(extra map[string]string) []string {
	env := make([]string, 0, len(extra)+32)
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if slices.Contains(e.Scrub, key) {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
