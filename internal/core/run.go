package core

import (
	"sync"
	"time"
)

// RunStatus is the aggregate outcome of a run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// Run is one execution of the pipeline graph for a single event.
type Run struct {
	ID    string
	Event Event

	plan []*Job

	// artifactDir holds this run's artifact snapshots; set before jobs start.
	artifactDir string

	mu        sync.Mutex
	jobs      map[string]*JobResult
	status    RunStatus
	cancelled bool
	started   time.Time
	finished  time.Time
}

func newRun(id string, ev Event, plan []*Job) *Run {
	r := &Run{
		ID:     id,
		Event:  ev,
		plan:   plan,
		jobs:   make(map[string]*JobResult, len(plan)),
		status: RunPending,
	}
	for _, j := range plan {
		r.jobs[j.Name] = &JobResult{Status: StatusPending}
	}
	return r
}

// Plan returns the job names in execution order.
func (r *Run) Plan() []string {
	names := make([]string, len(r.plan))
	for i, j := range r.plan {
		names[i] = j.Name
	}
	return names
}

// Status returns the aggregate status.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Job returns a copy of one job's result.
func (r *Run) Job(name string) (JobResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.jobs[name]
	if !ok {
		return JobResult{}, false
	}
	return *res, true
}

// ExitCode maps the aggregate status onto a process exit code.
func (r *Run) ExitCode() int {
	if r.Status() == RunSuccess {
		return 0
	}
	return 1
}

func (r *Run) update(name string, fn func(*JobResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.jobs[name])
}

func (r *Run) jobStatus(name string) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.jobs[name]; ok {
		return res.Status
	}
	return StatusPending
}

// finish aggregates: success iff no job failed.
func (r *Run) finish(cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = cancelled
	r.finished = time.Now().UTC()
	r.status = RunSuccess
	for _, res := range r.jobs {
		if res.Status == StatusFailure {
			r.status = RunFailure
		}
	}
}

// Summary is a point-in-time, serializable view of a run.
type Summary struct {
	ID        string               `json:"id"`
	Event     Event                `json:"event"`
	Status    RunStatus            `json:"status"`
	Cancelled bool                 `json:"cancelled,omitempty"`
	Plan      []string             `json:"plan"`
	Jobs      map[string]JobResult `json:"jobs"`
	Started   time.Time            `json:"started,omitzero"`
	Finished  time.Time            `json:"finished,omitzero"`
}

// Summary snapshots the run.
func (r *Run) Summary() Summary {
	plan := r.Plan()
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make(map[string]JobResult, len(r.jobs))
	for name, res := range r.jobs {
		cp := *res
		cp.ArtifactsWritten = append([]string(nil), res.ArtifactsWritten...)
		jobs[name] = cp
	}
	return Summary{
		ID:        r.ID,
		Event:     r.Event,
		Status:    r.status,
		Cancelled: r.cancelled,
		Plan:      plan,
		Jobs:      jobs,
		Started:   r.started,
		Finished:  r.finished,
	}
}
