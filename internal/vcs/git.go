package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/qiao-925/reposync/internal/provider"
)

const (
	originRemote   = "origin"
	upstreamRemote = "upstream"

	// fallbackBranch is used when the provider cannot report a default
	// branch for a detached-HEAD checkout.
	fallbackBranch = "main"
)

// GitOperator is the real Operator backend: go-git for cloning and worktree
// inspection, the git binary (through Runner) for the pull/rebase/stash
// chain go-git does not implement.
type GitOperator struct {
	provider provider.Provider
	runner   Runner
	token    string

	// cloneURL derives the clone endpoint from a canonical id.
	cloneURL func(id string) string
}

// Option configures a GitOperator.
type Option func(*GitOperator)

// WithRunner injects a command runner (tests use a scripted one).
func WithRunner(r Runner) Option {
	return func(g *GitOperator) {
		g.runner = r
	}
}

// WithCloneURL overrides clone endpoint derivation.
func WithCloneURL(f func(id string) string) Option {
	return func(g *GitOperator) {
		g.cloneURL = f
	}
}

// NewGitOperator creates the default git backend.
func NewGitOperator(p provider.Provider, token string, opts ...Option) *GitOperator {
	g := &GitOperator{
		provider: p,
		runner:   execRunner{},
		token:    token,
		cloneURL: func(id string) string {
			return "https://github.com/" + id + ".git"
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Operator = (*GitOperator)(nil)

// Clone fetches the repository into dir.
func (g *GitOperator) Clone(ctx context.Context, id, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create group directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{
		URL: g.cloneURL(id),
	}
	if g.token != "" {
		cloneOptions.Auth = &githttp.BasicAuth{
			Username: "x-access-token",
			Password: g.token,
		}
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, cloneOptions); err != nil {
		// Drop whatever a failed clone left behind so the next run plans
		// it as Missing again instead of Skipped.
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to clone %s: %w", id, err)
	}
	return nil
}

// Update refreshes an existing clone through the escalating fallback chain,
// short-circuiting on first success:
//  1. provider-assisted upstream sync, when an upstream remote is configured
//  2. rebase-pull from origin on the current branch
//  3. abort any stuck rebase, plain pull on the named branch
//  4. abort any stuck merge, unqualified pull
func (g *GitOperator) Update(ctx context.Context, id, dir string) error {
	owner, name, err := splitID(id)
	if err != nil {
		return err
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}

	branch, err := g.ensureBranch(ctx, repo, dir, owner, name)
	if err != nil {
		return err
	}

	stashed := g.stashIfDirty(ctx, repo, dir)
	defer func() {
		if stashed {
			if _, err := g.runner.Run(ctx, dir, "stash", "pop"); err != nil {
				slog.Warn("Failed to restore stash", "dir", dir, "error", err)
			}
		}
	}()

	var lastErr error

	if g.hasUpstreamRemote(repo) {
		if lastErr = g.syncWithUpstream(ctx, owner, name, branch, dir); lastErr == nil {
			return nil
		}
		slog.Debug("Upstream sync failed, falling back", "id", id, "error", lastErr)
	}

	if _, err = g.runner.Run(ctx, dir, "pull", "--rebase", originRemote, branch); err == nil {
		return nil
	}
	lastErr = err
	slog.Debug("Rebase-pull failed, falling back", "id", id, "error", lastErr)

	// A conflicted rebase leaves the worktree stuck; clear it first.
	_, _ = g.runner.Run(ctx, dir, "rebase", "--abort")
	if _, err = g.runner.Run(ctx, dir, "pull", originRemote, branch); err == nil {
		return nil
	}
	lastErr = err
	slog.Debug("Plain pull failed, falling back", "id", id, "error", lastErr)

	_, _ = g.runner.Run(ctx, dir, "merge", "--abort")
	if _, err = g.runner.Run(ctx, dir, "pull"); err == nil {
		return nil
	}
	lastErr = err

	return fmt.Errorf("all update strategies exhausted for %s: %w", id, lastErr)
}

// ensureBranch returns the branch to pull. A detached HEAD is moved to the
// provider-reported default branch first.
func (g *GitOperator) ensureBranch(
	ctx context.Context, repo *git.Repository, dir, owner, name string,
) (string, error) {
	head, err := repo.Head()
	if err == nil && head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	branch := fallbackBranch
	if meta, err := g.provider.Get(ctx, owner, name); err == nil && meta.DefaultBranch != "" {
		branch = meta.DefaultBranch
	} else {
		slog.Warn("Could not determine default branch, assuming fallback",
			"id", owner+"/"+name, "branch", branch)
	}

	if _, err := g.runner.Run(ctx, dir, "checkout", branch); err != nil {
		return "", fmt.Errorf("failed to leave detached HEAD: %w", err)
	}
	return branch, nil
}

// stashIfDirty stashes uncommitted changes (including untracked files) and
// reports whether a stash entry was created.
func (g *GitOperator) stashIfDirty(ctx context.Context, repo *git.Repository, dir string) bool {
	wt, err := repo.Worktree()
	if err != nil {
		return false
	}
	status, err := wt.Status()
	if err != nil || status.IsClean() {
		return false
	}

	if _, err := g.runner.Run(ctx, dir, "stash", "push", "--include-untracked"); err != nil {
		slog.Warn("Failed to stash uncommitted changes, updating in place",
			"dir", dir, "error", err)
		return false
	}
	return true
}

// hasUpstreamRemote reports whether a secondary upstream remote is configured.
func (*GitOperator) hasUpstreamRemote(repo *git.Repository) bool {
	_, err := repo.Remote(upstreamRemote)
	return err == nil
}

// syncWithUpstream asks the provider to merge the upstream parent into the
// fork, then fast-forwards the local clone.
func (g *GitOperator) syncWithUpstream(ctx context.Context, owner, name, branch, dir string) error {
	if err := g.provider.SyncFork(ctx, owner, name, branch); err != nil {
		return err
	}
	_, err := g.runner.Run(ctx, dir, "pull", "--rebase", originRemote, branch)
	return err
}
