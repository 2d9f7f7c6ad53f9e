// Package scheduler executes the reconciliation plan: two bounded-concurrency
// waves with a hard barrier between them, followed by a sequential retry pass
// over failures.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/qiao-925/reposync/internal/plan"
	"github.com/qiao-925/reposync/internal/vcs"
)

// Result is one task's outcome, written into an isolated per-task slot by
// its worker and aggregated single-threaded after the wave drains.
type Result struct {
	Task *plan.Task
	Err  error
}

// Failed reports whether the task ended in failure.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Scheduler runs tasks through the version-control operation collaborator
// under a per-wave concurrency bound.
type Scheduler struct {
	ops     vcs.Operator
	workers int64
}

// New creates a Scheduler with the given per-wave worker bound.
func New(ops vcs.Operator, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{ops: ops, workers: int64(workers)}
}

// Run executes the flattened task list as two sequential waves: every
// Missing (clone) task completes before any ToUpdate task starts. The
// barrier trades freshness for completeness: repository existence is
// restored before bandwidth is spent refreshing what already exists.
func (s *Scheduler) Run(ctx context.Context, p *plan.Plan) []Result {
	results := s.runWave(ctx, "missing", p.Missing())
	results = append(results, s.runWave(ctx, "to-update", p.ToUpdate())...)
	return results
}

// runWave launches tasks in list order, never exceeding the worker bound:
// a new task is admitted only when a semaphore slot frees up. Workers write
// only into their own result slot; counters are aggregated here, on the
// single control flow, after the wave fully drains.
func (s *Scheduler) runWave(ctx context.Context, name string, tasks []*plan.Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	slog.Info("Starting wave", "wave", name, "tasks", len(tasks), "workers", s.workers)
	start := time.Now()

	results := make([]Result, len(tasks))
	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: record the remaining tasks as failed
			// without starting them.
			results[i] = Result{Task: task, Err: err}
			task.Err = err
			continue
		}
		wg.Add(1)
		go func(slot int, task *plan.Task) {
			defer wg.Done()
			defer sem.Release(1)
			results[slot] = Result{Task: task, Err: s.execute(ctx, task)}
		}(i, task)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, res := range results {
		if res.Failed() {
			failed++
		} else {
			succeeded++
		}
	}
	slog.Info("Wave drained",
		"wave", name,
		"succeeded", succeeded,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return results
}

// execute performs exactly one task and records the attempt on it.
func (s *Scheduler) execute(ctx context.Context, task *plan.Task) error {
	task.Attempts++

	var err error
	switch task.Kind {
	case plan.KindClone:
		err = s.ops.Clone(ctx, task.CanonicalID, task.Dir)
	case plan.KindUpdate:
		err = s.ops.Update(ctx, task.CanonicalID, task.Dir)
	}
	task.Err = err

	if err != nil {
		slog.Warn("Task failed",
			"kind", task.Kind.String(),
			"id", task.CanonicalID,
			"group", task.Group,
			"error", err)
		return err
	}
	slog.Info("Task completed",
		"kind", task.Kind.String(),
		"id", task.CanonicalID,
		"group", task.Group)
	return nil
}
