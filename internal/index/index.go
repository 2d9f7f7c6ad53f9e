// Package index maintains the remote repository index: short names resolved
// to canonical "owner/name" identifiers via the source control provider.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qiao-925/reposync/internal/provider"
)

// RemoteIndex caches the bulk repository listing keyed by short name.
//
// The index is populated once before execution and is read-only while waves
// run. Resolve's lazy single-item fallback mutates the cache and must only
// be called from the single-threaded phases (planning, cleanup).
type RemoteIndex struct {
	provider provider.Provider
	owner    string
	byShort  map[string]provider.Repository
	byID     map[string]provider.Repository
}

// Build fetches the capped bulk listing and indexes it by trailing short
// name. owner, when non-empty, overrides the authenticated identity as the
// assumed owner for fallback resolution.
func Build(ctx context.Context, p provider.Provider, owner string) (*RemoteIndex, error) {
	if owner == "" {
		viewer, err := p.Viewer(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to determine assumed owner: %w", err)
		}
		owner = viewer
	}

	repos, err := p.ListOwned(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build remote index: %w", err)
	}

	ix := &RemoteIndex{
		provider: p,
		owner:    owner,
		byShort:  make(map[string]provider.Repository, len(repos)),
		byID:     make(map[string]provider.Repository, len(repos)),
	}
	for _, repo := range repos {
		if prev, ok := ix.byShort[repo.Name]; ok {
			// Last entry wins; make the overwrite visible.
			slog.Warn("Short name collision in remote index, keeping later entry",
				"short_name", repo.Name,
				"replaced", prev.FullName,
				"kept", repo.FullName)
		}
		ix.byShort[repo.Name] = repo
		ix.byID[repo.FullName] = repo
	}

	slog.Info("Remote index built", "owner", owner, "repositories", len(ix.byShort))
	return ix, nil
}

// Owner returns the assumed owner used for fallback resolution.
func (ix *RemoteIndex) Owner() string {
	return ix.owner
}

// Resolve maps a short name to its repository. The cache is consulted first;
// on a miss a single existence probe under the assumed owner is performed
// and cached on success. Not safe for concurrent use.
func (ix *RemoteIndex) Resolve(ctx context.Context, short string) (provider.Repository, bool) {
	if repo, ok := ix.byShort[short]; ok {
		return repo, true
	}

	repo, err := ix.provider.Get(ctx, ix.owner, short)
	if err != nil {
		if !errors.Is(err, provider.ErrNotFound) {
			slog.Warn("Existence probe failed", "short_name", short, "error", err)
		}
		return provider.Repository{}, false
	}

	ix.byShort[short] = *repo
	ix.byID[repo.FullName] = *repo
	return *repo, true
}

// Lookup consults the cache only, without a fallback probe.
func (ix *RemoteIndex) Lookup(short string) (provider.Repository, bool) {
	repo, ok := ix.byShort[short]
	return repo, ok
}

// Has reports whether the canonical identifier is present in the index.
func (ix *RemoteIndex) Has(id string) bool {
	_, ok := ix.byID[id]
	return ok
}

// Get returns the indexed repository for a canonical identifier.
func (ix *RemoteIndex) Get(id string) (provider.Repository, bool) {
	repo, ok := ix.byID[id]
	return repo, ok
}

// Size returns the number of indexed repositories.
func (ix *RemoteIndex) Size() int {
	return len(ix.byShort)
}
