package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiao-925/reposync/internal/provider"
)

func TestBuildIndexesByShortName(t *testing.T) {
	t.Parallel()

	fake := &provider.Fake{
		ListOwnedFunc: func(_ context.Context) ([]provider.Repository, error) {
			return []provider.Repository{
				{Name: "alpha", FullName: "acme/alpha"},
				{Name: "beta", FullName: "acme/beta"},
			}, nil
		},
	}

	ix, err := Build(context.Background(), fake, "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", ix.Owner())
	assert.Equal(t, 2, ix.Size())

	repo, ok := ix.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "acme/alpha", repo.FullName)

	assert.True(t, ix.Has("acme/beta"))
	assert.False(t, ix.Has("acme/gamma"))
}

func TestBuildUsesViewerWhenOwnerUnset(t *testing.T) {
	t.Parallel()

	fake := &provider.Fake{
		ViewerFunc: func(_ context.Context) (string, error) {
			return "qiao-925", nil
		},
	}

	ix, err := Build(context.Background(), fake, "")
	require.NoError(t, err)
	assert.Equal(t, "qiao-925", ix.Owner())
}

func TestBuildCollisionKeepsLast(t *testing.T) {
	t.Parallel()

	fake := &provider.Fake{
		ListOwnedFunc: func(_ context.Context) ([]provider.Repository, error) {
			return []provider.Repository{
				{Name: "dup", FullName: "acme/dup"},
				{Name: "dup", FullName: "mirror/dup"},
			}, nil
		},
	}

	ix, err := Build(context.Background(), fake, "acme")
	require.NoError(t, err)

	repo, ok := ix.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "mirror/dup", repo.FullName)
}

func TestResolveLazyProbeCachesSuccess(t *testing.T) {
	t.Parallel()

	probes := 0
	fake := &provider.Fake{
		GetFunc: func(_ context.Context, owner, name string) (*provider.Repository, error) {
			probes++
			if owner == "acme" && name == "lazy" {
				return &provider.Repository{Name: "lazy", FullName: "acme/lazy"}, nil
			}
			return nil, provider.ErrNotFound
		},
	}

	ix, err := Build(context.Background(), fake, "acme")
	require.NoError(t, err)

	repo, ok := ix.Resolve(context.Background(), "lazy")
	require.True(t, ok)
	assert.Equal(t, "acme/lazy", repo.FullName)

	// Second resolve hits the cache.
	_, ok = ix.Resolve(context.Background(), "lazy")
	assert.True(t, ok)
	assert.Equal(t, 1, probes)
	assert.True(t, ix.Has("acme/lazy"))
}

func TestResolveMissBothPaths(t *testing.T) {
	t.Parallel()

	ix, err := Build(context.Background(), &provider.Fake{}, "acme")
	require.NoError(t, err)

	_, ok := ix.Resolve(context.Background(), "ghost")
	assert.False(t, ok)
}

func TestBuildListFailure(t *testing.T) {
	t.Parallel()

	fake := &provider.Fake{
		ListOwnedFunc: func(_ context.Context) ([]provider.Repository, error) {
			return nil, errors.New("boom")
		},
	}

	_, err := Build(context.Background(), fake, "acme")
	assert.Error(t, err)
}
