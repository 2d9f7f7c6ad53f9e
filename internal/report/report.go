// Package report aggregates run statistics and renders the final
// reconciliation report.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/qiao-925/reposync/internal/cleaner"
	"github.com/qiao-925/reposync/internal/index"
	"github.com/qiao-925/reposync/internal/inventory"
	"github.com/qiao-925/reposync/internal/plan"
)

// Category classifies a ledger entry.
type Category string

const (
	CategoryClone   Category = "clone"
	CategoryUpdate  Category = "update"
	CategoryCleanup Category = "cleanup"
)

// Failure is one append-only ledger entry, written once and never mutated.
type Failure struct {
	ID       string
	Group    string
	Category Category
	Message  string
}

// Stats holds the final counts. They are only final after the retry pass
// and cleanup have completed.
type Stats struct {
	Added        int
	Updated      int
	Deleted      int
	Failed       int
	Skipped      int
	Unresolvable int
}

// BuildStats derives the final counts from the executed plan and the
// cleanup outcome. Task errors reflect the retry pass, so a task that
// failed once and recovered counts as a success and contributes nothing to
// the failure counter.
func BuildStats(p *plan.Plan, clean *cleaner.Outcome) Stats {
	var s Stats
	for _, task := range p.Tasks {
		switch {
		case task.Err != nil:
			s.Failed++
		case task.Kind == plan.KindClone:
			s.Added++
		case task.Kind == plan.KindUpdate:
			s.Updated++
		}
	}
	for i := range p.Groups {
		s.Skipped += len(p.Groups[i].Skipped)
		s.Unresolvable += len(p.Groups[i].Unresolvable)
	}
	if clean != nil {
		s.Deleted = len(clean.Deleted)
	}
	return s
}

// BuildLedger collects the failure ledger from still-failed tasks and
// cleanup failures.
func BuildLedger(p *plan.Plan, clean *cleaner.Outcome) []Failure {
	var ledger []Failure
	for _, task := range p.Tasks {
		if task.Err == nil {
			continue
		}
		category := CategoryUpdate
		if task.Kind == plan.KindClone {
			category = CategoryClone
		}
		ledger = append(ledger, Failure{
			ID:       task.CanonicalID,
			Group:    task.Group,
			Category: category,
			Message:  task.Err.Error(),
		})
	}
	if clean != nil {
		for _, f := range clean.Failures {
			ledger = append(ledger, Failure{
				ID:       f.Path,
				Category: CategoryCleanup,
				Message:  f.Message,
			})
		}
	}
	return ledger
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// Reporter renders the human-readable report.
type Reporter struct {
	out io.Writer
}

// NewReporter creates a Reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// PrintProgress renders one ledger line per executed task.
func (r *Reporter) PrintProgress(p *plan.Plan) {
	for _, task := range p.Tasks {
		marker := okStyle.Render("✓")
		detail := ""
		if task.Err != nil {
			marker = failStyle.Render("✗")
			detail = " " + faintStyle.Render(task.Err.Error())
		}
		fmt.Fprintf(r.out, "%s %s %s%s\n", marker, task.Kind, task.CanonicalID, detail)
	}
}

// PrintSummary renders the final counts and the failure ledger.
func (r *Reporter) PrintSummary(stats Stats, ledger []Failure) {
	fmt.Fprintf(r.out, "\nadded %d, updated %d, deleted %d, failed %d, skipped %d, unresolvable %d\n",
		stats.Added, stats.Updated, stats.Deleted, stats.Failed, stats.Skipped, stats.Unresolvable)

	if len(ledger) == 0 {
		fmt.Fprintln(r.out, okStyle.Render("all operations succeeded"))
		return
	}
	fmt.Fprintln(r.out, failStyle.Render("failures:"))
	for _, f := range ledger {
		fmt.Fprintf(r.out, "  [%s] %s: %s\n", f.Category, f.ID, f.Message)
	}
}

// PrintDiff renders the expected-vs-local diff table with a success rate.
// The local snapshot passed here should be taken after execution so clones
// from this run are counted.
func (r *Reporter) PrintDiff(p *plan.Plan, ix *index.RemoteIndex, local *inventory.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"GROUP", "REPOSITORY", "CANONICAL ID", "LANGUAGE", "STARS", "STATE"})

	expected, present := 0, 0
	for gi := range p.Groups {
		gp := &p.Groups[gi]
		unresolvable := make(map[string]struct{}, len(gp.Unresolvable))
		for _, short := range gp.Unresolvable {
			unresolvable[short] = struct{}{}
		}
		skipped := make(map[string]struct{}, len(gp.Skipped))
		for _, short := range gp.Skipped {
			skipped[short] = struct{}{}
		}

		for _, short := range gp.Group.Repos {
			if _, ok := unresolvable[short]; ok {
				t.AppendRow(table.Row{gp.Group.Name, short, "-", "-", "-", "unresolvable"})
				continue
			}
			if _, ok := skipped[short]; ok {
				t.AppendRow(table.Row{gp.Group.Name, short, "-", "-", "-", "skipped"})
				continue
			}

			repo, _ := ix.Lookup(short)
			expected++
			state := "missing"
			if local.Has(repo.FullName) {
				state = "present"
				present++
			}
			t.AppendRow(table.Row{
				gp.Group.Name, short, repo.FullName, repo.Language, repo.Stars, state,
			})
		}
	}
	t.AppendSeparator()
	t.Render()

	rate := 100.0
	if expected > 0 {
		rate = float64(present) / float64(expected) * 100
	}
	fmt.Fprintf(r.out, "expected %d, present %d, success rate %.1f%%\n", expected, present, rate)
}
