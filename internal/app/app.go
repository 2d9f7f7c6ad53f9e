// Package app wires the reconciliation phases together and drives one run.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/qiao-925/reposync/internal/catalog"
	"github.com/qiao-925/reposync/internal/cleaner"
	"github.com/qiao-925/reposync/internal/config"
	"github.com/qiao-925/reposync/internal/index"
	"github.com/qiao-925/reposync/internal/inventory"
	"github.com/qiao-925/reposync/internal/plan"
	"github.com/qiao-925/reposync/internal/provider"
	"github.com/qiao-925/reposync/internal/report"
	"github.com/qiao-925/reposync/internal/scheduler"
	"github.com/qiao-925/reposync/internal/vcs"
)

// App holds the run configuration and its collaborators. All services are
// constructed once per run and passed explicitly; there is no ambient
// global state.
type App struct {
	cfg *config.Config
	out io.Writer

	// provider and ops are injectable for tests; nil selects the real
	// GitHub/git backends.
	provider provider.Provider
	ops      vcs.Operator
}

// Option configures an App.
type Option func(*App)

// WithOutput redirects the human-readable report.
func WithOutput(out io.Writer) Option {
	return func(a *App) {
		a.out = out
	}
}

// WithProvider injects a source control provider.
func WithProvider(p provider.Provider) Option {
	return func(a *App) {
		a.provider = p
	}
}

// WithOperator injects a version-control operation backend.
func WithOperator(ops vcs.Operator) Option {
	return func(a *App) {
		a.ops = ops
	}
}

// New creates an App for one reconciliation run.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	if a.provider == nil {
		a.provider = provider.NewGitHub(cfg.APIBaseURL, cfg.Token, cfg.ListingCap)
	}
	if a.ops == nil {
		a.ops = vcs.NewGitOperator(a.provider, cfg.Token)
	}
	return a
}

// Run drives the phases in order: load catalog and remote index, snapshot
// local state, plan, execute the two waves, retry failures, prune stale
// clones, report. Only environment setup failures return an error;
// per-repository failures are reported, not fatal.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.NewString()
	start := time.Now()
	slog.Info("Starting reconciliation run",
		"run_id", runID,
		"catalog", a.cfg.CatalogPath,
		"root", a.cfg.Root,
		"workers", a.cfg.Workers)

	// Phase 1: load the declared configuration. A missing document aborts.
	cat, err := catalog.Load(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	slog.Info("Catalog loaded", "groups", len(cat.Groups), "repositories", cat.TotalRepos())

	// Phase 2: build the remote index once, before any wave.
	ix, err := index.Build(ctx, a.provider, a.cfg.Owner)
	if err != nil {
		return fmt.Errorf("environment setup failed: %w", err)
	}

	reposDir := a.cfg.ReposDir()
	if err := os.MkdirAll(reposDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	// Phase 3: snapshot local state once, before execution.
	scanner := inventory.NewScanner(ix)
	snapshot, err := scanner.Scan(ctx, cat.GroupDirs(reposDir))
	if err != nil {
		return err
	}

	// Phase 4: plan. All lazy remote resolution happens here, on the
	// single control flow.
	planner := plan.NewPlanner(ix, reposDir, a.cfg.Root)
	diff := planner.ComputeDiff(ctx, cat.Groups)
	slog.Info("Plan computed",
		"missing", len(diff.Missing()),
		"to_update", len(diff.ToUpdate()))

	// Phase 5: execute both waves under the concurrency bound.
	sched := scheduler.New(a.ops, a.cfg.Workers)
	results := sched.Run(ctx, diff)

	// Phase 6: one sequential retry pass over the failures.
	var failures []scheduler.Result
	for _, res := range results {
		if res.Failed() {
			failures = append(failures, res)
		}
	}
	retrier := scheduler.NewRetryCoordinator(a.ops)
	recovered, still := retrier.Retry(ctx, failures)
	if len(failures) > 0 {
		slog.Info("Retry pass finished",
			"recovered", len(recovered),
			"still_failing", len(still))
	}

	// Phase 7: prune stale clones using the pre-wave snapshot.
	outcome := cleaner.New(ix, a.provider).Clean(ctx, snapshot, diff.Expected)

	// Phase 8: report. Re-snapshot so this run's clones are counted.
	finalSnapshot, err := scanner.Scan(ctx, cat.GroupDirs(reposDir))
	if err != nil {
		slog.Warn("Post-run scan failed, reporting against the stale snapshot", "error", err)
		finalSnapshot = snapshot
	}

	reporter := report.NewReporter(a.out)
	reporter.PrintProgress(diff)
	reporter.PrintDiff(diff, ix, finalSnapshot)
	reporter.PrintSummary(report.BuildStats(diff, outcome), report.BuildLedger(diff, outcome))

	slog.Info("Reconciliation run finished",
		"run_id", runID,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
