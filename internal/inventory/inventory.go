// Package inventory scans the configured group directories for local
// repository clones.
package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/qiao-925/reposync/internal/index"
)

// Record describes one local repository clone.
type Record struct {
	// Path is the clone's directory.
	Path string

	// ShortName is the directory's base name.
	ShortName string

	// CanonicalID is the repository's "owner/name" identifier. When the
	// short name does not resolve remotely, it is assumed to live under
	// the index's owner.
	CanonicalID string

	// Resolved reports whether CanonicalID came from the remote index.
	Resolved bool
}

// Snapshot is the local state captured once before the execution waves run.
type Snapshot struct {
	Records []Record

	// IDs is the set of canonical identifiers believed present locally.
	IDs map[string]struct{}

	// ByPath maps clone directory to canonical identifier.
	ByPath map[string]string
}

// Has reports whether the canonical identifier is believed present locally.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.IDs[id]
	return ok
}

// IsRepository reports whether path carries a version-control marker.
func IsRepository(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// Scanner walks group directories and records their repository clones.
type Scanner struct {
	index *index.RemoteIndex
}

// NewScanner creates a Scanner that resolves short names through the index.
func NewScanner(ix *index.RemoteIndex) *Scanner {
	return &Scanner{index: ix}
}

// Scan inspects each directory's immediate children. A child counts as a
// local repository only if it carries a version-control marker. Missing
// group directories are skipped.
func (s *Scanner) Scan(ctx context.Context, dirs []string) (*Snapshot, error) {
	snap := &Snapshot{
		IDs:    make(map[string]struct{}),
		ByPath: make(map[string]string),
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan group directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if !IsRepository(path) {
				continue
			}
			rec := Record{
				Path:      path,
				ShortName: entry.Name(),
			}
			if repo, ok := s.index.Resolve(ctx, rec.ShortName); ok {
				rec.CanonicalID = repo.FullName
				rec.Resolved = true
			} else {
				rec.CanonicalID = s.index.Owner() + "/" + rec.ShortName
			}
			snap.Records = append(snap.Records, rec)
			snap.IDs[rec.CanonicalID] = struct{}{}
			snap.ByPath[rec.Path] = rec.CanonicalID
		}
	}
	return snap, nil
}
