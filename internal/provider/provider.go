// Package provider defines the source control provider interface and its
// GitHub implementation.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a repository does not exist (or is not
// visible to the authenticated identity).
var ErrNotFound = errors.New("repository not found")

// Repository carries the per-repository metadata exposed by the provider.
type Repository struct {
	// Name is the trailing short name.
	Name string

	// FullName is the canonical "owner/name" identifier.
	FullName string

	Description   string
	Language      string
	Stars         int
	Forks         int
	PushedAt      time.Time
	Archived      bool
	Private       bool
	DefaultBranch string

	// CloneURL is the HTTPS clone endpoint.
	CloneURL string
}

// Provider defines the operations reposync needs from a source control host.
type Provider interface {
	// Viewer returns the login of the authenticated identity.
	Viewer(ctx context.Context) (string, error)

	// ListOwned returns the repositories owned by the authenticated
	// identity, up to the provider-configured cap.
	ListOwned(ctx context.Context) ([]Repository, error)

	// Get probes a single repository and returns its metadata.
	// Returns ErrNotFound when the repository does not exist.
	Get(ctx context.Context, owner, name string) (*Repository, error)

	// SyncFork updates a fork's branch from its upstream parent.
	SyncFork(ctx context.Context, owner, name, branch string) error
}
