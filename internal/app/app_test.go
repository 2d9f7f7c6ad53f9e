package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiao-925/reposync/internal/config"
	"github.com/qiao-925/reposync/internal/provider"
)

// fakeOps materializes clones on disk so re-scans observe them.
type fakeOps struct {
	mu      sync.Mutex
	clones  []string
	updates []string
}

func (f *fakeOps) Clone(_ context.Context, id, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := git.PlainInit(dir, false); err != nil {
		return err
	}
	f.mu.Lock()
	f.clones = append(f.clones, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeOps) Update(_ context.Context, id, _ string) error {
	f.mu.Lock()
	f.updates = append(f.updates, id)
	f.mu.Unlock()
	return nil
}

func writeCatalog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "REPOS.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Root:        root,
		CatalogPath: writeCatalog(t, root, "## Tools\n- alpha\n- beta\n"),
		Workers:     2,
		Owner:       "acme",
		ListingCap:  100,
	}
}

func toolsProvider() *provider.Fake {
	return &provider.Fake{
		ListOwnedFunc: func(_ context.Context) ([]provider.Repository, error) {
			return []provider.Repository{
				{Name: "alpha", FullName: "acme/alpha", Language: "Go"},
			}, nil
		},
	}
}

// Scenario: alpha resolves and is cloned; beta is reported once as
// unresolvable and never attempted.
func TestRunClonesMissingAndReportsUnresolvable(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ops := &fakeOps{}
	var out bytes.Buffer

	a := New(cfg, WithProvider(toolsProvider()), WithOperator(ops), WithOutput(&out))
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []string{"acme/alpha"}, ops.clones)
	assert.Empty(t, ops.updates)

	cloneDir := filepath.Join(cfg.ReposDir(), "Tools", "alpha")
	_, err := git.PlainOpen(cloneDir)
	assert.NoError(t, err, "clone should carry a version-control marker")

	report := out.String()
	assert.Contains(t, report, "unresolvable")
	assert.Contains(t, report, "acme/alpha")
	assert.Contains(t, report, "present")
}

// Idempotence: a second run with no remote changes plans zero Missing.
func TestRunIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ops := &fakeOps{}

	a := New(cfg, WithProvider(toolsProvider()), WithOperator(ops), WithOutput(&bytes.Buffer{}))
	require.NoError(t, a.Run(context.Background()))
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []string{"acme/alpha"}, ops.clones, "second run must not re-clone")
	assert.Equal(t, []string{"acme/alpha"}, ops.updates, "second run updates the existing clone")
}

// Cleanup: a local clone that is unexpected, unindexed, and fails the
// targeted probe is deleted.
func TestRunPrunesStaleClone(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	stale := filepath.Join(cfg.ReposDir(), "Tools", "gamma")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	_, err := git.PlainInit(stale, false)
	require.NoError(t, err)

	a := New(cfg, WithProvider(toolsProvider()), WithOperator(&fakeOps{}), WithOutput(&bytes.Buffer{}))
	require.NoError(t, a.Run(context.Background()))

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr), "stale clone should be pruned")
}

func TestRunMissingCatalogIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(cfg.Root, "absent.md")

	a := New(cfg, WithProvider(toolsProvider()), WithOperator(&fakeOps{}), WithOutput(&bytes.Buffer{}))
	assert.Error(t, a.Run(context.Background()))
}

// Per-repository failures are reported, never fatal.
func TestRunSurvivesTaskFailures(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var out bytes.Buffer

	a := New(cfg, WithProvider(toolsProvider()), WithOperator(failingOps{}), WithOutput(&out))
	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, out.String(), "failed 1")
}

type failingOps struct{}

func (failingOps) Clone(_ context.Context, _, _ string) error {
	return assert.AnError
}

func (failingOps) Update(_ context.Context, _, _ string) error {
	return assert.AnError
}
