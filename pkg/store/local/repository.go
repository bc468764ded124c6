package local

import (
	"context"
	"errors"
	"sync"

	"github.com/worklin/worklin/pkg/blobstore"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
)

// Repository implements store.Repository on the snapshot, where blocks are
// embedded in their page. Every call is a read-modify-write of the whole
// snapshot; calls are serialized.
//
// Unlike Adapter.Load, a missing snapshot reads as an empty workspace and
// parse errors are returned.
type Repository struct {
	adapter *Adapter
	mu      sync.Mutex
}

var _ store.Repository = (*Repository)(nil)

func NewRepository(adapter *Adapter) *Repository {
	return &Repository{adapter: adapter}
}

func (r *Repository) read(ctx context.Context) (*models.Workspace, error) {
	ws, err := r.adapter.Read(ctx)
	if errors.Is(err, blobstore.ErrNotFound) {
		return &models.Workspace{Pages: []*models.Page{}}, nil
	}
	return ws, err
}

// ListPages returns the pages in snapshot order. The snapshot holds a single
// workspace, so workspaceID is not consulted.
func (r *Repository) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ws.Pages {
		p.WorkspaceID = workspaceID
	}
	return ws.Pages, nil
}

func (r *Repository) LoadPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	page, _ := ws.Page(id)
	return page, nil
}

func (r *Repository) SavePageWithBlocks(ctx context.Context, page *models.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, err := r.read(ctx)
	if err != nil {
		return err
	}

	saved := page.Clone()
	for i, b := range saved.Blocks {
		b.PageID = saved.ID
		b.Order = i
	}
	if _, i := ws.Page(page.ID); i >= 0 {
		ws.Pages[i] = saved
	} else {
		ws.Pages = append(ws.Pages, saved)
	}
	return r.adapter.Write(ctx, ws)
}

func (r *Repository) DeleteCascade(ctx context.Context, id models.PageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, err := r.read(ctx)
	if err != nil {
		return err
	}
	_, i := ws.Page(id)
	if i < 0 {
		return nil
	}
	ws.Pages = append(ws.Pages[:i], ws.Pages[i+1:]...)
	return r.adapter.Write(ctx, ws)
}
