package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chartci/internal/storage"
	"chartci/pkg/utils"
)

// DefaultStepTimeout applies to steps that declare no timeout.
const DefaultStepTimeout = 5 * time.Minute

// StepContext is what a built-in action sees of its run.
type StepContext struct {
	RunID     string
	Job       string
	Step      Step
	Event     Event
	Artifacts map[string]storage.Artifact // consumed artifacts only
	Workdir   string
	Exec      CommandRunner
	Logger    *slog.Logger
}

// Action is a built-in step implementation referenced by `uses`.
// The returned string is the step's log output.
type Action interface {
	Run(ctx context.Context, sc StepContext) (string, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, sc StepContext) (string, error)

func (f ActionFunc) Run(ctx context.Context, sc StepContext) (string, error) { return f(ctx, sc) }

// Recorder receives every finished run.
type Recorder interface {
	Record(run *Run) error
}

// Runner ties together Trigger evaluation + graph resolution + Executor + storage
type Runner struct {
	Exec      CommandRunner
	Artifacts *storage.ArtifactStore
	Logs      *storage.LogStorage // optional
	Recorder  Recorder            // optional
	Actions   map[string]Action
	Logger    *slog.Logger

	Workdir     string
	ArtifactDir string        // parent of per-run artifact snapshots; empty uses the system temp dir
	StepTimeout time.Duration // 0 means DefaultStepTimeout
	MaxParallel int           // 0 means unbounded; 1 runs strictly in plan order
	NewID       func() string
}

func NewRunner(exec CommandRunner, artifacts *storage.ArtifactStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Exec:        exec,
		Artifacts:   artifacts,
		Actions:     make(map[string]Action),
		Logger:      logger,
		Workdir:     ".",
		StepTimeout: DefaultStepTimeout,
		NewID:       func() string { return uuid.NewString() },
	}
}

// Register makes an action available to `uses` steps.
func (r *Runner) Register(name string, a Action) {
	r.Actions[name] = a
}

// Plan admits the event and resolves the execution plan. Nothing runs and
// the artifact store is not touched when it fails.
func (r *Runner) Plan(p *Pipeline, ev Event) (*Run, error) {
	elig, err := Evaluate(p, ev)
	if err != nil {
		return nil, err
	}
	plan, err := Resolve(p.Jobs, elig.Jobs)
	if err != nil {
		return nil, err
	}
	return newRun(r.NewID(), ev, plan), nil
}

// Run plans and executes one event to completion.
func (r *Runner) Run(ctx context.Context, p *Pipeline, ev Event) (*Run, error) {
	run, err := r.Plan(p, ev)
	if err != nil {
		return nil, err
	}
	r.Execute(ctx, run)
	return run, nil
}

// Execute runs every planned job. Each job waits on its upstream jobs'
// completion channels; independent jobs may run concurrently, bounded by
// MaxParallel. Cancelling ctx skips every job that has not finished.
func (r *Runner) Execute(ctx context.Context, run *Run) {
	logger := r.Logger.With("run_id", run.ID, "event", string(run.Event.Type), "branch", run.Event.Branch)
	run.mu.Lock()
	run.started = time.Now().UTC()
	run.mu.Unlock()
	logger.Info("run started", "plan", strings.Join(run.Plan(), ","))

	if dir, err := r.newArtifactDir(run.ID); err != nil {
		logger.Error("cannot create artifact directory", "error", err)
	} else {
		run.artifactDir = dir
	}

	done := make(map[string]chan struct{}, len(run.plan))
	for _, j := range run.plan {
		done[j.Name] = make(chan struct{})
	}

	var g errgroup.Group
	if r.MaxParallel > 0 {
		g.SetLimit(r.MaxParallel)
	}
	for _, j := range run.plan {
		g.Go(func() error {
			defer close(done[j.Name])
			r.runJob(ctx, run, j, done, logger.With("job", j.Name))
			return nil
		})
	}
	_ = g.Wait()

	run.finish(ctx.Err() != nil)

	if r.Logs != nil {
		if path, err := r.Logs.SaveManifest(run.ID, r.Artifacts.List(run.ID)); err != nil {
			logger.Warn("cannot save artifact manifest", "error", err)
		} else {
			logger.Debug("artifact manifest saved", "path", path)
		}
	}
	r.Artifacts.Discard(run.ID)
	if run.artifactDir != "" {
		if err := os.RemoveAll(run.artifactDir); err != nil {
			logger.Warn("cannot remove artifact snapshots", "error", err)
		}
	}
	if r.Recorder != nil {
		if err := r.Recorder.Record(run); err != nil {
			logger.Warn("cannot record run", "error", err)
		}
	}
	logger.Info("run finished", "status", string(run.Status()))
}

func (r *Runner) runJob(ctx context.Context, run *Run, j *Job, done map[string]chan struct{}, logger *slog.Logger) {
	// suspend until every upstream job is terminal
	for _, dep := range j.Needs {
		select {
		case <-done[dep]:
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		r.skip(run, j, "cancelled", logger)
		return
	}
	for _, dep := range j.Needs {
		if st := run.jobStatus(dep); st != StatusSuccess {
			r.skip(run, j, fmt.Sprintf("upstream %s is %s", dep, st), logger)
			return
		}
	}
	if !j.Condition(run.Event) {
		r.skip(run, j, "condition not met", logger)
		return
	}

	run.update(j.Name, func(res *JobResult) {
		res.Status = StatusRunning
		res.Started = time.Now().UTC()
	})
	logger.Info("job started")

	inputs := make(map[string]storage.Artifact, len(j.Consumes))
	for _, name := range j.Consumes {
		a, err := r.Artifacts.Get(run.ID, name)
		if err != nil {
			r.fail(run, j, &MissingArtifactError{Job: j.Name, Artifact: name}, logger)
			return
		}
		if got, err := utils.HashDir(a.Path); err != nil || got != a.Digest {
			r.fail(run, j, &ArtifactDigestError{Job: j.Name, Artifact: name, Want: a.Digest, Got: got}, logger)
			return
		}
		inputs[name] = a
	}

	for i, s := range j.Steps {
		if ctx.Err() != nil {
			r.skip(run, j, "cancelled", logger)
			return
		}
		err := r.runStep(ctx, run, j, i, s, inputs, logger.With("step", s.Label(i)))
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			r.skip(run, j, "cancelled", logger)
			return
		}
		r.fail(run, j, err, logger)
		return
	}

	if j.Produces != nil {
		if err := r.store(run, j); err != nil {
			r.fail(run, j, err, logger)
			return
		}
	}

	run.update(j.Name, func(res *JobResult) {
		res.Status = StatusSuccess
		res.Finished = time.Now().UTC()
		if j.Produces != nil {
			res.ArtifactsWritten = append(res.ArtifactsWritten, j.Produces.Name)
		}
	})
	logger.Info("job succeeded")
}

func (r *Runner) runStep(ctx context.Context, run *Run, j *Job, i int, s Step, inputs map[string]storage.Artifact, logger *slog.Logger) error {
	label := s.Label(i)
	timeout, err := s.TimeoutOr(r.StepTimeout)
	if err != nil {
		return &StepFailure{Job: j.Name, Step: label, Err: err}
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("step started", "timeout", timeout.String())
	var (
		output   string
		exitCode int
	)
	if s.Run != "" {
		cmd := ShellCommand(s.Run)
		cmd.Dir = r.Workdir
		cmd.Env = artifactEnv(inputs)
		res, runErr := r.Exec.Run(stepCtx, cmd)
		if res != nil {
			output, exitCode = res.Combined, res.ExitCode
		}
		err = runErr
	} else {
		action, ok := r.Actions[s.Uses]
		if !ok {
			err = fmt.Errorf("unknown action %q", s.Uses)
		} else {
			output, err = action.Run(stepCtx, StepContext{
				RunID:     run.ID,
				Job:       j.Name,
				Step:      s,
				Event:     run.Event,
				Artifacts: inputs,
				Workdir:   r.Workdir,
				Exec:      r.Exec,
				Logger:    logger,
			})
		}
	}

	if r.Logs != nil {
		if path, logErr := r.Logs.SaveLog(run.ID, j.Name, i, label, output); logErr != nil {
			logger.Warn("failed to save step log", "error", logErr)
		} else {
			logger.Debug("step log saved", "path", path)
		}
	}
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("exceeded timeout %s: %w", timeout, err)
		}
		return &StepFailure{Job: j.Name, Step: label, ExitCode: exitCode, Err: err}
	}
	return nil
}

func (r *Runner) newArtifactDir(runID string) (string, error) {
	if r.ArtifactDir != "" {
		if err := os.MkdirAll(r.ArtifactDir, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(r.ArtifactDir, "chartci-"+runID+"-")
}

// store snapshots the job's output into the run's artifact directory and
// hands the snapshot to the artifact store. Later writes to the workdir,
// from this run or any other, do not reach consumers.
func (r *Runner) store(run *Run, j *Job) error {
	if run.artifactDir == "" {
		return fmt.Errorf("job %s: no artifact directory for run %s", j.Name, run.ID)
	}
	src := j.Produces.Path
	if !filepath.IsAbs(src) {
		src = filepath.Join(r.Workdir, src)
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("job %s: output %q not produced: %w", j.Name, j.Produces.Name, err)
	}

	// job names are unique, and a job produces at most one output
	dst := filepath.Join(run.artifactDir, j.Name)
	if err := utils.CopyTree(src, dst); err != nil {
		return fmt.Errorf("job %s: snapshot output %q: %w", j.Name, j.Produces.Name, err)
	}
	digest, err := utils.HashDir(dst)
	if err != nil {
		return fmt.Errorf("job %s: hash output %q: %w", j.Name, j.Produces.Name, err)
	}
	err = r.Artifacts.Put(run.ID, j.Produces.Name, storage.Artifact{
		Path:     dst,
		Producer: j.Name,
		Digest:   digest,
	})
	if errors.Is(err, storage.ErrDuplicateArtifact) {
		_ = os.RemoveAll(dst)
		return &DuplicateArtifactError{Job: j.Name, Artifact: j.Produces.Name}
	}
	return err
}

func (r *Runner) skip(run *Run, j *Job, reason string, logger *slog.Logger) {
	run.update(j.Name, func(res *JobResult) {
		res.Status = StatusSkipped
		res.Reason = reason
		res.Finished = time.Now().UTC()
	})
	logger.Info("job skipped", "reason", reason)
}

func (r *Runner) fail(run *Run, j *Job, err error, logger *slog.Logger) {
	run.update(j.Name, func(res *JobResult) {
		res.Status = StatusFailure
		res.Reason = err.Error()
		res.Err = err
		res.Finished = time.Now().UTC()
	})
	logger.Error("job failed", "error", err)
}

// ArtifactEnvName is the variable under which shell steps find a consumed artifact.
func ArtifactEnvName(name string) string {
	var b strings.Builder
	b.WriteString("CHARTCI_ARTIFACT_")
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func artifactEnv(inputs map[string]storage.Artifact) map[string]string {
	if len(inputs) == 0 {
		return nil
	}
	env := make(map[string]string, len(inputs))
	for name, a := range inputs {
		env[ArtifactEnvName(name)] = a.Path
	}
	return env
}
