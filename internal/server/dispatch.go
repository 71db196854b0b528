package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chartci/internal/core"
)

// maxHistory bounds how many finished runs stay queryable.
const maxHistory = 200

type activeRun struct {
	run    *core.Run
	cancel context.CancelFunc
}

// Dispatcher starts one run per admitted event. A newer event with the same
// key (type and branch) cancels the run it supersedes.
type Dispatcher struct {
	runner   *core.Runner
	pipeline *core.Pipeline
	logger   *slog.Logger
	base     context.Context

	mu     sync.Mutex
	active map[string]*activeRun
	runs   map[string]*core.Run
	order  []string
	wg     sync.WaitGroup
}

func NewDispatcher(ctx context.Context, runner *core.Runner, pipeline *core.Pipeline, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		runner:   runner,
		pipeline: pipeline,
		logger:   logger,
		base:     ctx,
		active:   make(map[string]*activeRun),
		runs:     make(map[string]*core.Run),
	}
}

// Submit plans the event and executes it in the background.
func (d *Dispatcher) Submit(ev core.Event) (*core.Run, error) {
	run, err := d.runner.Plan(d.pipeline, ev)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(d.base)
	key := ev.Key()

	d.mu.Lock()
	if prev, ok := d.active[key]; ok {
		d.logger.Info("superseding run", "run_id", prev.run.ID, "by", run.ID, "key", key)
		prev.cancel()
	}
	d.active[key] = &activeRun{run: run, cancel: cancel}
	d.runs[run.ID] = run
	d.order = append(d.order, run.ID)
	if len(d.order) > maxHistory {
		delete(d.runs, d.order[0])
		d.order = d.order[1:]
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer cancel()
		d.runner.Execute(ctx, run)

		d.mu.Lock()
		if cur, ok := d.active[key]; ok && cur.run == run {
			delete(d.active, key)
		}
		d.mu.Unlock()
	}()
	return run, nil
}

// Get returns a run by id.
func (d *Dispatcher) Get(id string) (*core.Run, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[id]
	return run, ok
}

// List returns the known runs, newest first.
func (d *Dispatcher) List() []*core.Run {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*core.Run, 0, len(d.order))
	for i := len(d.order) - 1; i >= 0; i-- {
		out = append(out, d.runs[d.order[i]])
	}
	return out
}

// Wait blocks until every submitted run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Schedule submits a schedule event every interval until ctx ends.
func (d *Dispatcher) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := d.Submit(core.Event{Type: core.EventSchedule})
			if err != nil {
				d.logger.Error("scheduled run rejected", "error", err)
				continue
			}
			d.logger.Info("scheduled run submitted", "run_id", run.ID)
		}
	}
}
