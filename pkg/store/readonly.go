package store

import (
	"context"

	"github.com/worklin/worklin/pkg/models"
)

// ReadOnlyStore wraps a RemoteStore and prevents write operations while
// isReadOnly reports true.
//
// The read-only state is checked on every call, so a server can be switched
// into read-only mode (for example while a sync command copies data into the
// same backend) without rebuilding the store. Reads and subscriptions always
// pass through.
type ReadOnlyStore struct {
	RemoteStore
	isReadOnly func() bool
}

// NewReadOnlyStore creates a read-only wrapper for a store. A nil isReadOnly
// means always read-only.
func NewReadOnlyStore(store RemoteStore, isReadOnly func() bool) *ReadOnlyStore {
	if isReadOnly == nil {
		isReadOnly = func() bool { return true }
	}
	return &ReadOnlyStore{
		RemoteStore: store,
		isReadOnly:  isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() RemoteStore {
	return r.RemoteStore
}

func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// Write operations - check read-only mode first

func (r *ReadOnlyStore) CreateWorkspace(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.CreateWorkspace(ctx, workspace)
}

func (r *ReadOnlyStore) UpdateWorkspace(ctx context.Context, id models.WorkspaceID, patch models.WorkspacePatch) (*models.Workspace, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.UpdateWorkspace(ctx, id, patch)
}

func (r *ReadOnlyStore) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.DeleteWorkspace(ctx, id)
}

func (r *ReadOnlyStore) CreatePage(ctx context.Context, page *models.Page) (*models.Page, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.CreatePage(ctx, page)
}

func (r *ReadOnlyStore) UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.UpdatePage(ctx, id, patch)
}

func (r *ReadOnlyStore) DeletePage(ctx context.Context, id models.PageID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.DeletePage(ctx, id)
}

func (r *ReadOnlyStore) DeletePageCascade(ctx context.Context, id models.PageID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.DeletePageCascade(ctx, id)
}

func (r *ReadOnlyStore) CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.CreateBlock(ctx, block)
}

func (r *ReadOnlyStore) UpdateBlock(ctx context.Context, id models.BlockID, patch models.BlockPatch) (*models.Block, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.RemoteStore.UpdateBlock(ctx, id, patch)
}

func (r *ReadOnlyStore) DeleteBlock(ctx context.Context, id models.BlockID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.DeleteBlock(ctx, id)
}

func (r *ReadOnlyStore) ReorderBlocks(ctx context.Context, pageID models.PageID, blockIDs []models.BlockID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.ReorderBlocks(ctx, pageID, blockIDs)
}

func (r *ReadOnlyStore) Migrate(ctx context.Context) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.RemoteStore.Migrate(ctx)
}
