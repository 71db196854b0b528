// Package bot invokes the external chart upgrade bot. The invocation mode
// comes from the trigger alone: pull requests get a dry run, scheduled ticks
// get a mutating run that may open or update a change on its own.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"chartci/internal/core"
)

// Mode selects whether the bot may make persistent changes.
type Mode string

const (
	DryRun   Mode = "dry_run"
	Mutating Mode = "mutating"
)

// TokenEnv is the variable the bot reads its API token from.
const TokenEnv = "API_TOKEN"

var (
	// ErrUnsafeMode is returned for any attempt to run a pull-request
	// triggered invocation in mutating mode.
	ErrUnsafeMode = errors.New("mutating bot invocation refused for pull request event")
	// ErrModeMismatch is returned when a request's mode is not the one its trigger dictates.
	ErrModeMismatch = errors.New("bot mode does not match trigger")
	// ErrNoCredential is returned when no token is configured.
	ErrNoCredential = errors.New("bot credential is not configured")
	// ErrNoTarget is returned when the bot's coordinates are incomplete.
	ErrNoTarget = errors.New("bot target is not configured")
)

// ModeFor derives the invocation mode from the trigger type.
func ModeFor(t core.EventType) (Mode, error) {
	switch t {
	case core.EventPullRequest:
		return DryRun, nil
	case core.EventSchedule:
		return Mutating, nil
	}
	return "", fmt.Errorf("no bot mode for %q events: %w", t, ErrModeMismatch)
}

// Target are the positional coordinates handed to the bot.
type Target struct {
	Organization string `yaml:"organization"`
	Repository   string `yaml:"repository"`
	Chart        string `yaml:"chart"`
}

// Validate requires every coordinate.
func (t Target) Validate() error {
	if t.Organization == "" || t.Repository == "" || t.Chart == "" {
		return fmt.Errorf("%w: organization, repository and chart are required", ErrNoTarget)
	}
	return nil
}

// Args builds the bot command line for the mode.
func Args(mode Mode, t Target, labels []string) []string {
	args := []string{t.Organization, t.Repository, t.Chart}
	switch mode {
	case DryRun:
		args = append(args, "--dry-run", "--verbose")
	case Mutating:
		args = append(args, "--identity")
		if len(labels) > 0 {
			args = append(args, "--labels")
			args = append(args, labels...)
		}
	}
	return args
}

// Request is a single bot invocation.
type Request struct {
	Mode       Mode
	Origin     core.EventType
	Credential string
	Target     Target
	Labels     []string
}

// Result is what the bot printed.
type Result struct {
	Mode     Mode
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// BotInvocationError is a nonzero exit from the bot. It is never retried.
type BotInvocationError struct {
	Mode     Mode
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BotInvocationError) Error() string {
	msg := fmt.Sprintf("upgrade bot (%s) exited with code %d", e.Mode, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *BotInvocationError) Unwrap() error { return e.Err }

// Invoker runs the bot program through a command runner.
type Invoker struct {
	Program    string
	Exec       core.CommandRunner
	Target     Target
	Labels     []string
	Credential string
	Logger     *slog.Logger
}

// Invoke checks the request against its trigger and runs the bot.
func (i *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.Origin == core.EventPullRequest && req.Mode != DryRun {
		return nil, ErrUnsafeMode
	}
	want, err := ModeFor(req.Origin)
	if err != nil {
		return nil, err
	}
	if req.Mode != want {
		return nil, fmt.Errorf("%s requested for %s event: %w", req.Mode, req.Origin, ErrModeMismatch)
	}
	if req.Credential == "" {
		return nil, ErrNoCredential
	}
	if err := req.Target.Validate(); err != nil {
		return nil, err
	}

	args := Args(req.Mode, req.Target, req.Labels)
	if req.Mode == DryRun && (!slices.Contains(args, "--dry-run") || slices.Contains(args, "--identity")) {
		return nil, ErrUnsafeMode
	}

	i.logger().Info("invoking upgrade bot",
		"mode", string(req.Mode),
		"origin", string(req.Origin),
		"args", strings.Join(args, " "),
	)
	res, err := i.Exec.Run(ctx, core.Command{
		Program: i.Program,
		Args:    args,
		Env:     map[string]string{TokenEnv: req.Credential},
	})
	out := &Result{Mode: req.Mode, Args: args}
	if res != nil {
		out.Stdout, out.Stderr, out.ExitCode = res.Stdout, res.Stderr, res.ExitCode
	}
	if err != nil {
		return out, &BotInvocationError{Mode: req.Mode, ExitCode: out.ExitCode, Stderr: out.Stderr, Err: err}
	}
	return out, nil
}

// Run exposes the invoker as the `bot` pipeline action. Labels from the
// step's `labels` input (comma separated) are added to the configured ones.
func (i *Invoker) Run(ctx context.Context, sc core.StepContext) (string, error) {
	mode, err := ModeFor(sc.Event.Type)
	if err != nil {
		return "", err
	}
	labels := append([]string(nil), i.Labels...)
	for _, l := range strings.Split(sc.Step.With["labels"], ",") {
		if l = strings.TrimSpace(l); l != "" && !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}

	res, err := i.Invoke(ctx, Request{
		Mode:       mode,
		Origin:     sc.Event.Type,
		Credential: i.Credential,
		Target:     i.Target,
		Labels:     labels,
	})
	if res == nil {
		return "", err
	}
	return res.Stdout + res.Stderr, err
}

func (i *Invoker) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
