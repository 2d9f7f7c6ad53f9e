package scheduler

import (
	"context"
	"log/slog"

	"github.com/qiao-925/reposync/internal/plan"
	"github.com/qiao-925/reposync/internal/vcs"
)

// RetryCoordinator replays failed tasks exactly once, sequentially, after
// both waves have completed. The failure count is only final after this
// pass: a retry success moves from the failed to the succeeded column,
// never double-counted.
type RetryCoordinator struct {
	ops vcs.Operator
}

// NewRetryCoordinator creates a RetryCoordinator.
func NewRetryCoordinator(ops vcs.Operator) *RetryCoordinator {
	return &RetryCoordinator{ops: ops}
}

// Retry replays each failed result once, not pooled, and partitions the
// outcomes into recovered and still-failed.
func (r *RetryCoordinator) Retry(ctx context.Context, failed []Result) (recovered, still []Result) {
	if len(failed) == 0 {
		return nil, nil
	}
	slog.Info("Retrying failed tasks", "count", len(failed))

	for _, res := range failed {
		task := res.Task
		task.Attempts++

		var err error
		switch task.Kind {
		case plan.KindClone:
			err = r.ops.Clone(ctx, task.CanonicalID, task.Dir)
		case plan.KindUpdate:
			err = r.ops.Update(ctx, task.CanonicalID, task.Dir)
		}
		task.Err = err

		if err != nil {
			slog.Warn("Retry failed",
				"kind", task.Kind.String(),
				"id", task.CanonicalID,
				"attempts", task.Attempts,
				"error", err)
			still = append(still, Result{Task: task, Err: err})
			continue
		}
		slog.Info("Retry recovered task",
			"kind", task.Kind.String(),
			"id", task.CanonicalID,
			"attempts", task.Attempts)
		recovered = append(recovered, Result{Task: task})
	}
	return recovered, still
}
