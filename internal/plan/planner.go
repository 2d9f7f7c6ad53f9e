package plan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/qiao-925/reposync/internal/catalog"
	"github.com/qiao-925/reposync/internal/index"
	"github.com/qiao-925/reposync/internal/inventory"
)

// Planner classifies every configured repository into exactly one bucket.
type Planner struct {
	index *index.RemoteIndex

	// reposRoot holds the group directories.
	reposRoot string

	// legacyRoot is the deprecated flat layout root; clones found directly
	// under it are migrated into their group directory.
	legacyRoot string
}

// NewPlanner creates a Planner.
func NewPlanner(ix *index.RemoteIndex, reposRoot, legacyRoot string) *Planner {
	return &Planner{
		index:      ix,
		reposRoot:  reposRoot,
		legacyRoot: legacyRoot,
	}
}

// ComputeDiff iterates groups in catalog order and repositories in declared
// order, classifying each into Missing, ToUpdate, Skipped or Unresolvable.
// Lazy remote resolution happens here, on the single control flow, before
// any wave starts.
func (p *Planner) ComputeDiff(ctx context.Context, groups []catalog.Group) *Plan {
	result := &Plan{Expected: make(map[string]struct{})}

	for _, group := range groups {
		gp := GroupPlan{Group: group}
		groupDir := group.Dir(p.reposRoot)

		for _, short := range group.Repos {
			repo, ok := p.index.Resolve(ctx, short)
			if !ok {
				gp.Unresolvable = append(gp.Unresolvable, short)
				slog.Warn("Repository unresolvable, excluded from execution",
					"group", group.Name, "short_name", short)
				continue
			}
			result.Expected[repo.FullName] = struct{}{}

			target := filepath.Join(groupDir, short)
			task := &Task{
				CanonicalID: repo.FullName,
				ShortName:   short,
				Group:       group.Name,
				Dir:         target,
			}

			switch p.classify(short, target) {
			case KindUpdate:
				task.Kind = KindUpdate
				task.Priority = PriorityLow
				gp.ToUpdate = append(gp.ToUpdate, task)
			case KindClone:
				task.Kind = KindClone
				task.Priority = PriorityHigh
				gp.Missing = append(gp.Missing, task)
			default:
				gp.Skipped = append(gp.Skipped, short)
			}
		}

		result.Groups = append(result.Groups, gp)
	}

	// Flatten: all Missing across all groups precede all ToUpdate,
	// stable within each tier.
	for i := range result.Groups {
		result.Tasks = append(result.Tasks, result.Groups[i].Missing...)
	}
	for i := range result.Groups {
		result.Tasks = append(result.Tasks, result.Groups[i].ToUpdate...)
	}

	return result
}

// kindSkip marks the Skipped bucket in classify's return value.
const kindSkip TaskKind = -1

// classify decides the bucket for one repository short name.
func (p *Planner) classify(short, target string) TaskKind {
	// An existing clone at the canonical target wins.
	if inventory.IsRepository(target) {
		return KindUpdate
	}

	// A clone at the deprecated flat path gets migrated, best effort. A
	// failed move still classifies as ToUpdate; the stale path surfaces as
	// an update failure later.
	legacy := filepath.Join(p.legacyRoot, short)
	if legacy != target && inventory.IsRepository(legacy) {
		if err := p.migrate(legacy, target); err != nil {
			slog.Warn("Legacy path migration failed",
				"short_name", short, "from", legacy, "to", target, "error", err)
		} else {
			slog.Info("Migrated legacy clone", "short_name", short, "to", target)
		}
		return KindUpdate
	}

	// A non-repository directory at the target is left alone.
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		slog.Info("Target exists without version-control marker, skipping",
			"path", target)
		return kindSkip
	}

	return KindClone
}

// migrate moves a flat-layout clone into its group directory.
func (p *Planner) migrate(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.Rename(from, to)
}
