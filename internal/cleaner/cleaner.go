// Package cleaner prunes local clones whose repositories are neither
// expected by the configuration nor still present upstream.
package cleaner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/qiao-925/reposync/internal/index"
	"github.com/qiao-925/reposync/internal/inventory"
	"github.com/qiao-925/reposync/internal/provider"
)

// Failure records one directory the cleaner could not handle. It never
// aborts the remaining cleanup.
type Failure struct {
	Path    string
	Message string
}

// Outcome summarizes a cleanup pass.
type Outcome struct {
	// Deleted lists removed clone directories.
	Deleted []string

	// Kept counts directories inspected and retained.
	Kept int

	Failures []Failure
}

// Cleaner decides, per local clone, between keep and delete.
type Cleaner struct {
	index    *index.RemoteIndex
	provider provider.Provider
}

// New creates a Cleaner.
func New(ix *index.RemoteIndex, p provider.Provider) *Cleaner {
	return &Cleaner{index: ix, provider: p}
}

// Clean walks the snapshot's clones. A clone is kept when its canonical id
// is expected, or still resolves in the remote index, or a targeted
// existence probe under the assumed owner succeeds. Only when all three miss
// is the directory deleted. Directories without a version-control marker are
// never touched.
func (c *Cleaner) Clean(ctx context.Context, snap *inventory.Snapshot, expected map[string]struct{}) *Outcome {
	out := &Outcome{}

	for _, rec := range snap.Records {
		// The snapshot predates the waves; re-check the marker before
		// considering deletion.
		if !inventory.IsRepository(rec.Path) {
			continue
		}

		if _, ok := expected[rec.CanonicalID]; ok {
			out.Kept++
			continue
		}

		// Known upstream but outside this run's selection.
		if c.index.Has(rec.CanonicalID) {
			out.Kept++
			continue
		}

		if c.probeExists(ctx, rec.CanonicalID, out) {
			out.Kept++
			continue
		}

		if err := os.RemoveAll(rec.Path); err != nil {
			slog.Error("Failed to delete stale clone", "path", rec.Path, "error", err)
			out.Failures = append(out.Failures, Failure{Path: rec.Path, Message: err.Error()})
			continue
		}
		slog.Info("Deleted stale clone", "path", rec.Path, "id", rec.CanonicalID)
		out.Deleted = append(out.Deleted, rec.Path)
	}

	return out
}

// probeExists performs the targeted existence probe. Only a definitive
// not-found answer clears the way for deletion; transient probe errors keep
// the directory and are reported.
func (c *Cleaner) probeExists(ctx context.Context, id string, out *Outcome) bool {
	owner, name, ok := strings.Cut(id, "/")
	if !ok {
		return false
	}

	_, err := c.provider.Get(ctx, owner, name)
	if err == nil {
		return true
	}
	if errors.Is(err, provider.ErrNotFound) {
		return false
	}

	slog.Warn("Existence probe failed, keeping clone", "id", id, "error", err)
	out.Failures = append(out.Failures, Failure{Path: id, Message: err.Error()})
	return true
}
