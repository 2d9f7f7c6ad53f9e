package provider

import "context"

// Fake is a deterministic Provider double for tests. Unset function fields
// fall back to benign defaults.
type Fake struct {
	ViewerFunc    func(ctx context.Context) (string, error)
	ListOwnedFunc func(ctx context.Context) ([]Repository, error)
	GetFunc       func(ctx context.Context, owner, name string) (*Repository, error)
	SyncForkFunc  func(ctx context.Context, owner, name, branch string) error
}

var _ Provider = (*Fake)(nil)

// Viewer implements Provider.
func (f *Fake) Viewer(ctx context.Context) (string, error) {
	if f.ViewerFunc != nil {
		return f.ViewerFunc(ctx)
	}
	return "fake-owner", nil
}

// ListOwned implements Provider.
func (f *Fake) ListOwned(ctx context.Context) ([]Repository, error) {
	if f.ListOwnedFunc != nil {
		return f.ListOwnedFunc(ctx)
	}
	return nil, nil
}

// Get implements Provider.
func (f *Fake) Get(ctx context.Context, owner, name string) (*Repository, error) {
	if f.GetFunc != nil {
		return f.GetFunc(ctx, owner, name)
	}
	return nil, ErrNotFound
}

// SyncFork implements Provider.
func (f *Fake) SyncFork(ctx context.Context, owner, name, branch string) error {
	if f.SyncForkFunc != nil {
		return f.SyncForkFunc(ctx, owner, name, branch)
	}
	return nil
}
