package core

import (
	"fmt"
	"slices"
	"time"
)

// Job is a unit of execution inside a pipeline
type Job struct {
	Name     string      `yaml:"name"`                // Job name (e.g. "lint", "coverage-report")
	On       []EventType `yaml:"on"`                  // Trigger types that make the job eligible
	MainOnly bool        `yaml:"main_only,omitempty"` // Only run when the event targets the main branch
	Needs    []string    `yaml:"needs,omitempty"`     // Jobs that must succeed first
	Consumes []string    `yaml:"consumes,omitempty"`  // Artifacts read before the first step
	Produces *Output     `yaml:"produces,omitempty"`  // Artifact stored after the last step
	Steps    []Step      `yaml:"steps"`
}

// Output names the directory a job hands to later jobs.
type Output struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Step is either a shell command (Run) or a built-in action (Uses).
type Step struct {
	Name    string            `yaml:"name,omitempty"`
	Run     string            `yaml:"run,omitempty"`     // Command to execute (e.g. "go vet ./...")
	Uses    string            `yaml:"uses,omitempty"`    // Built-in action name (e.g. "bot")
	With    map[string]string `yaml:"with,omitempty"`    // Action inputs
	Timeout string            `yaml:"timeout,omitempty"` // Go duration, overrides the runner default
}

// Triggered reports whether the event type makes the job eligible.
func (j *Job) Triggered(t EventType) bool {
	return slices.Contains(j.On, t)
}

// Condition is the job's run-time predicate over the live event.
func (j *Job) Condition(ev Event) bool {
	return !j.MainOnly || ev.IsMain
}

// Label returns a printable step identifier.
func (s Step) Label(index int) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Uses != "":
		return fmt.Sprintf("%d-%s", index+1, s.Uses)
	default:
		return fmt.Sprintf("%d", index+1)
	}
}

// TimeoutOr parses the step timeout, falling back to def when unset and
// to DefaultStepTimeout when def is not positive.
func (s Step) TimeoutOr(def time.Duration) (time.Duration, error) {
	if def <= 0 {
		def = DefaultStepTimeout
	}
	if s.Timeout == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", s.Timeout)
	}
	return d, nil
}

// JobStatus is the lifecycle state of a job within one run.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusSuccess JobStatus = "success"
	StatusFailure JobStatus = "failure"
	StatusSkipped JobStatus = "skipped"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusSkipped
}

// JobResult is the per-run state of one job.
type JobResult struct {
	Status           JobStatus `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	ArtifactsWritten []string  `json:"artifacts_written,omitempty"`
	Started          time.Time `json:"started,omitzero"`
	Finished         time.Time `json:"finished,omitzero"`
	Err              error     `json:"-"`
}
