// Package vcs performs the low-level repository operations: cloning missing
// repositories and refreshing existing clones through an escalating update
// chain.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Operator is the version-control operation collaborator. The scheduler
// delegates all repository work to it; a deterministic double stands in for
// tests.
type Operator interface {
	// Clone fetches the repository identified by the canonical "owner/name"
	// id into dir.
	Clone(ctx context.Context, id, dir string) error

	// Update refreshes the existing clone in dir.
	Update(ctx context.Context, id, dir string) error
}

// Runner executes a git command in a working directory and returns its
// combined output. Injectable so the update chain is testable without git.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// execRunner shells out to the git binary.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s failed: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// splitID splits a canonical "owner/name" identifier.
func splitID(id string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid canonical identifier: %q", id)
	}
	return owner, name, nil
}
