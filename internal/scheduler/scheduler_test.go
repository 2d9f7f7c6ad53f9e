package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiao-925/reposync/internal/plan"
)

// fakeOperator is a deterministic Operator double that tracks concurrency.
type fakeOperator struct {
	mu          sync.Mutex
	cloneErr    map[string]error
	updateErr   map[string]error
	cloned      []string
	updated     []string
	live        atomic.Int64
	maxLive     atomic.Int64
	clonesLeft  atomic.Int64
	earlyUpdate atomic.Bool
}

func (f *fakeOperator) enter() {
	live := f.live.Add(1)
	for {
		max := f.maxLive.Load()
		if live <= max || f.maxLive.CompareAndSwap(max, live) {
			break
		}
	}
	// Hold the slot long enough for overlap to be observable.
	time.Sleep(5 * time.Millisecond)
}

func (f *fakeOperator) Clone(_ context.Context, id, _ string) error {
	f.enter()
	defer f.live.Add(-1)
	defer f.clonesLeft.Add(-1)

	f.mu.Lock()
	f.cloned = append(f.cloned, id)
	err := f.cloneErr[id]
	f.mu.Unlock()
	return err
}

func (f *fakeOperator) Update(_ context.Context, id, _ string) error {
	f.enter()
	defer f.live.Add(-1)

	if f.clonesLeft.Load() > 0 {
		f.earlyUpdate.Store(true)
	}

	f.mu.Lock()
	f.updated = append(f.updated, id)
	err := f.updateErr[id]
	f.mu.Unlock()
	return err
}

func cloneTask(id string) *plan.Task {
	return &plan.Task{CanonicalID: id, Kind: plan.KindClone, Priority: plan.PriorityHigh}
}

func updateTask(id string) *plan.Task {
	return &plan.Task{CanonicalID: id, Kind: plan.KindUpdate, Priority: plan.PriorityLow}
}

func buildPlan(tasks ...*plan.Task) *plan.Plan {
	return &plan.Plan{Tasks: tasks}
}

func TestRunExecutesAllTasks(t *testing.T) {
	t.Parallel()

	ops := &fakeOperator{}
	ops.clonesLeft.Store(2)
	s := New(ops, 3)

	p := buildPlan(
		cloneTask("acme/a"), cloneTask("acme/b"),
		updateTask("acme/c"), updateTask("acme/d"),
	)
	results := s.Run(context.Background(), p)

	require.Len(t, results, 4)
	for _, res := range results {
		assert.False(t, res.Failed())
		assert.Equal(t, 1, res.Task.Attempts)
	}
	assert.ElementsMatch(t, []string{"acme/a", "acme/b"}, ops.cloned)
	assert.ElementsMatch(t, []string{"acme/c", "acme/d"}, ops.updated)
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	const workers = 3
	ops := &fakeOperator{}
	ops.clonesLeft.Store(12)
	s := New(ops, workers)

	var tasks []*plan.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, cloneTask("acme/repo"+string(rune('a'+i))))
	}
	s.Run(context.Background(), buildPlan(tasks...))

	assert.LessOrEqual(t, ops.maxLive.Load(), int64(workers),
		"live worker count must never exceed the configured bound")
	assert.Greater(t, ops.maxLive.Load(), int64(1),
		"independent tasks should actually overlap")
}

func TestWaveBarrier(t *testing.T) {
	t.Parallel()

	ops := &fakeOperator{}
	ops.clonesLeft.Store(6)
	s := New(ops, 4)

	var tasks []*plan.Task
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		tasks = append(tasks, cloneTask("acme/"+id))
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		tasks = append(tasks, updateTask("acme/"+id))
	}
	s.Run(context.Background(), buildPlan(tasks...))

	assert.False(t, ops.earlyUpdate.Load(),
		"no update may start before every missing task has finished")
}

func TestFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ops := &fakeOperator{
		cloneErr:  map[string]error{"acme/bad": boom},
		updateErr: map[string]error{"acme/worse": boom},
	}
	ops.clonesLeft.Store(2)
	s := New(ops, 2)

	p := buildPlan(
		cloneTask("acme/good"), cloneTask("acme/bad"),
		updateTask("acme/fine"), updateTask("acme/worse"),
	)
	results := s.Run(context.Background(), p)

	var failed []string
	for _, res := range results {
		if res.Failed() {
			failed = append(failed, res.Task.CanonicalID)
		}
	}
	assert.ElementsMatch(t, []string{"acme/bad", "acme/worse"}, failed)
}

func TestRetryNeutrality(t *testing.T) {
	t.Parallel()

	boom := errors.New("transient")
	ops := &fakeOperator{cloneErr: map[string]error{"acme/flaky": boom}}
	ops.clonesLeft.Store(1)
	s := New(ops, 2)

	p := buildPlan(cloneTask("acme/flaky"))
	results := s.Run(context.Background(), p)
	require.Len(t, results, 1)
	require.True(t, results[0].Failed())

	var failures []Result
	for _, res := range results {
		if res.Failed() {
			failures = append(failures, res)
		}
	}

	// The flake clears before the retry pass.
	ops.mu.Lock()
	delete(ops.cloneErr, "acme/flaky")
	ops.mu.Unlock()

	rc := NewRetryCoordinator(ops)
	recovered, still := rc.Retry(context.Background(), failures)

	assert.Len(t, recovered, 1)
	assert.Empty(t, still)
	assert.Equal(t, 2, recovered[0].Task.Attempts)
	assert.NoError(t, recovered[0].Task.Err)
}

func TestRetryStillFailing(t *testing.T) {
	t.Parallel()

	boom := errors.New("permanent")
	ops := &fakeOperator{updateErr: map[string]error{"acme/stuck": boom}}
	rc := NewRetryCoordinator(ops)

	task := updateTask("acme/stuck")
	task.Attempts = 1
	recovered, still := rc.Retry(context.Background(), []Result{{Task: task, Err: boom}})

	assert.Empty(t, recovered)
	require.Len(t, still, 1)
	assert.Equal(t, 2, still[0].Task.Attempts)
	assert.ErrorIs(t, still[0].Err, boom)
}

func TestRetryNothingToDo(t *testing.T) {
	t.Parallel()

	rc := NewRetryCoordinator(&fakeOperator{})
	recovered, still := rc.Retry(context.Background(), nil)
	assert.Empty(t, recovered)
	assert.Empty(t, still)
}

func TestRunCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := &fakeOperator{}
	s := New(ops, 2)
	results := s.Run(ctx, buildPlan(cloneTask("acme/a"), cloneTask("acme/b")))

	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Failed())
	}
}
