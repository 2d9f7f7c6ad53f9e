// Package plan computes the reconciliation diff between the declared
// catalog and the on-disk mirror, and flattens it into a prioritized task
// list.
package plan

import (
	"fmt"

	"github.com/qiao-925/reposync/internal/catalog"
)

// TaskKind identifies the repository operation a task performs.
type TaskKind int

const (
	// KindClone fetches a repository that is missing locally.
	KindClone TaskKind = iota

	// KindUpdate refreshes an existing local clone.
	KindUpdate
)

// String implements fmt.Stringer.
func (k TaskKind) String() string {
	switch k {
	case KindClone:
		return "clone"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Priority orders tasks across the flattened list: completeness before
// freshness.
type Priority int

const (
	// PriorityHigh is assigned to Missing (clone) tasks.
	PriorityHigh Priority = iota

	// PriorityLow is assigned to ToUpdate tasks.
	PriorityLow
)

// Task is one unit of reconciliation work. Created during planning; mutated
// only by the scheduler and retry coordinator.
type Task struct {
	// CanonicalID is the repository's "owner/name" identifier.
	CanonicalID string

	// ShortName is the trailing name component.
	ShortName string

	// Group is the owning group's name.
	Group string

	// Dir is the target clone directory.
	Dir string

	Kind     TaskKind
	Priority Priority

	// Attempts counts executions including retries.
	Attempts int

	// Err is the last execution error, if any.
	Err error
}

// GroupPlan buckets one group's configured repositories.
type GroupPlan struct {
	Group catalog.Group

	Missing  []*Task
	ToUpdate []*Task

	// Skipped lists short names whose target path exists but carries no
	// version-control marker. Never a failure, never deleted.
	Skipped []string

	// Unresolvable lists short names with no canonical identifier.
	// Excluded from execution, reported separately.
	Unresolvable []string
}

// Total returns the number of classified repositories; it always equals the
// group's configured count.
func (gp *GroupPlan) Total() int {
	return len(gp.Missing) + len(gp.ToUpdate) + len(gp.Skipped) + len(gp.Unresolvable)
}

// Plan is the complete reconciliation diff.
type Plan struct {
	Groups []GroupPlan

	// Tasks is the flattened execution list: every Missing task across all
	// groups precedes every ToUpdate task, preserving discovery order
	// within each tier.
	Tasks []*Task

	// Expected is the set of canonical identifiers the configuration
	// resolves to; the cleaner keeps everything in it.
	Expected map[string]struct{}
}

// Missing returns the high-priority tier of the task list.
func (p *Plan) Missing() []*Task {
	return p.tier(PriorityHigh)
}

// ToUpdate returns the low-priority tier of the task list.
func (p *Plan) ToUpdate() []*Task {
	return p.tier(PriorityLow)
}

func (p *Plan) tier(prio Priority) []*Task {
	var tasks []*Task
	for _, t := range p.Tasks {
		if t.Priority == prio {
			tasks = append(tasks, t)
		}
	}
	return tasks
}
