// Package memory provides an in-process implementation of
// [github.com/worklin/worklin/pkg/store.RemoteStore].
//
// It keeps the same normalized layout and ordering rules as the database
// backends and delivers subscriptions through a
// [github.com/worklin/worklin/pkg/store/changefeed.Feed]. It backs the
// "memory" sync mode and the tests of everything above the store layer.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
	"github.com/worklin/worklin/pkg/store/changefeed"
)

// Store is an in-memory RemoteStore. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	workspaces map[models.WorkspaceID]*models.Workspace
	pages      map[models.PageID]*models.Page
	blocks     map[models.BlockID]*models.Block

	feed *changefeed.Feed
	now  func() time.Time
	fail func(op string) error
}

type Option func(*Store)

// WithClock replaces the clock used for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFailures makes every write consult fail first; a non-nil error aborts
// the write. op is the method name, e.g. "UpdateBlock".
func WithFailures(fail func(op string) error) Option {
	return func(s *Store) { s.fail = fail }
}

func New(opts ...Option) *Store {
	s := &Store{
		workspaces: make(map[models.WorkspaceID]*models.Workspace),
		pages:      make(map[models.PageID]*models.Page),
		blocks:     make(map[models.BlockID]*models.Block),
		feed:       changefeed.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.RemoteStore = (*Store)(nil)

func (s *Store) check(op string) error {
	if s.fail == nil {
		return nil
	}
	if err := s.fail(op); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (s *Store) Migrate(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Workspace operations

func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error) {
	if err := s.check("CreateWorkspace"); err != nil {
		return nil, err
	}
	w := workspace.Clone()
	if w.ID.IsZero() {
		w.ID = models.NewWorkspaceID()
	}
	if w.Members == nil {
		w.Members = []string{}
	}
	w.Pages = nil
	now := s.now()
	w.CreatedAt, w.UpdatedAt = now, now

	s.mu.Lock()
	s.workspaces[w.ID] = w
	s.mu.Unlock()

	s.feed.Publish(changefeed.Change{Table: changefeed.Workspaces, ID: w.ID.String()})
	return w.Clone(), nil
}

func (s *Store) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaces[id].Clone(), nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, id models.WorkspaceID, patch models.WorkspacePatch) (*models.Workspace, error) {
	if err := s.check("UpdateWorkspace"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	w, ok := s.workspaces[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to update workspace %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(w)
	w.UpdatedAt = s.now()
	out := w.Clone()
	s.mu.Unlock()

	s.feed.Publish(changefeed.Change{Table: changefeed.Workspaces, ID: id.String()})
	return out, nil
}

func (s *Store) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if err := s.check("DeleteWorkspace"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.workspaces, id)
	s.mu.Unlock()

	s.feed.Publish(changefeed.Change{Table: changefeed.Workspaces, ID: id.String()})
	return nil
}

func (s *Store) SubscribeWorkspace(ctx context.Context, id models.WorkspaceID, fn func(*models.Workspace)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForRow(changefeed.Workspaces, id.String()), func(ctx context.Context) {
		if w, _ := s.GetWorkspace(ctx, id); w != nil {
			fn(w)
		}
	}), nil
}

// Page operations

func (s *Store) CreatePage(ctx context.Context, page *models.Page) (*models.Page, error) {
	if err := s.check("CreatePage"); err != nil {
		return nil, err
	}
	p := page.Clone()
	if p.ID.IsZero() {
		p.ID = models.NewPageID()
	}
	p.Blocks = []*models.Block{}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	s.mu.Lock()
	s.pages[p.ID] = p
	s.mu.Unlock()

	s.publishPage(p)
	return p.Clone(), nil
}

func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[id].Clone(), nil
}

func (s *Store) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	s.mu.RLock()
	pages := make([]*models.Page, 0)
	for _, p := range s.pages {
		if p.WorkspaceID == workspaceID {
			pages = append(pages, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(pages, func(i, j int) bool {
		if !pages[i].UpdatedAt.Equal(pages[j].UpdatedAt) {
			return pages[i].UpdatedAt.After(pages[j].UpdatedAt)
		}
		return pages[i].ID.String() < pages[j].ID.String()
	})
	return pages, nil
}

func (s *Store) UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error) {
	if err := s.check("UpdatePage"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	p, ok := s.pages[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to update page %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(p)
	p.UpdatedAt = s.now()
	out := p.Clone()
	s.mu.Unlock()

	s.publishPage(out)
	return out, nil
}

func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	if err := s.check("DeletePage"); err != nil {
		return err
	}
	s.mu.Lock()
	p := s.pages[id]
	delete(s.pages, id)
	s.mu.Unlock()

	if p != nil {
		s.publishPage(p)
	}
	return nil
}

func (s *Store) DeletePageCascade(ctx context.Context, id models.PageID) error {
	if err := s.check("DeletePageCascade"); err != nil {
		return err
	}
	s.mu.Lock()
	p := s.pages[id]
	delete(s.pages, id)
	var removed []*models.Block
	for bid, b := range s.blocks {
		if b.PageID == id {
			removed = append(removed, b)
			delete(s.blocks, bid)
		}
	}
	s.mu.Unlock()

	if p != nil {
		s.publishPage(p)
	}
	for _, b := range removed {
		s.publishBlock(b)
	}
	return nil
}

func (s *Store) SubscribePage(ctx context.Context, id models.PageID, fn func(*models.Page)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForRow(changefeed.Pages, id.String()), func(ctx context.Context) {
		if p, _ := s.GetPage(ctx, id); p != nil {
			fn(p)
		}
	}), nil
}

// Block operations

func (s *Store) CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error) {
	if err := s.check("CreateBlock"); err != nil {
		return nil, err
	}
	if err := block.Type.Validate(); err != nil {
		return nil, err
	}
	b := block.Clone()
	if b.ID.IsZero() {
		b.ID = models.NewBlockID()
	}
	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now

	s.mu.Lock()
	s.blocks[b.ID] = b
	s.mu.Unlock()

	s.publishBlock(b)
	return b.Clone(), nil
}

func (s *Store) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[id].Clone(), nil
}

func (s *Store) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	s.mu.RLock()
	blocks := make([]*models.Block, 0)
	for _, b := range s.blocks {
		if b.PageID == pageID {
			blocks = append(blocks, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return blocks, nil
}

func (s *Store) UpdateBlock(ctx context.Context, id models.BlockID, patch models.BlockPatch) (*models.Block, error) {
	if err := s.check("UpdateBlock"); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	b, ok := s.blocks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to update block %s: %w", id, store.ErrNotFound)
	}
	patch.Apply(b)
	b.UpdatedAt = s.now()
	out := b.Clone()
	s.mu.Unlock()

	s.publishBlock(out)
	return out, nil
}

func (s *Store) DeleteBlock(ctx context.Context, id models.BlockID) error {
	if err := s.check("DeleteBlock"); err != nil {
		return err
	}
	s.mu.Lock()
	b := s.blocks[id]
	delete(s.blocks, id)
	s.mu.Unlock()

	if b != nil {
		s.publishBlock(b)
	}
	return nil
}

func (s *Store) ReorderBlocks(ctx context.Context, pageID models.PageID, blockIDs []models.BlockID) error {
	if err := s.check("ReorderBlocks"); err != nil {
		return err
	}
	s.mu.Lock()
	for _, id := range blockIDs {
		if b, ok := s.blocks[id]; !ok || b.PageID != pageID {
			s.mu.Unlock()
			return fmt.Errorf("failed to reorder blocks: %w", store.ErrUnknownBlocks)
		}
	}
	now := s.now()
	for i, id := range blockIDs {
		b := s.blocks[id]
		b.Order = i
		b.UpdatedAt = now
	}
	s.mu.Unlock()

	if len(blockIDs) > 0 {
		s.feed.Publish(changefeed.Change{Table: changefeed.Blocks, ID: blockIDs[0].String(), Parent: pageID.String()})
	}
	return nil
}

func (s *Store) SubscribeBlocks(ctx context.Context, pageID models.PageID, fn func([]*models.Block)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForChildren(changefeed.Blocks, pageID.String()), func(ctx context.Context) {
		blocks, err := s.ListBlocks(ctx, pageID)
		if err == nil {
			fn(blocks)
		}
	}), nil
}

// subscribe ties a feed subscription to a context that is cancelled
// together with the returned handle.
func (s *Store) subscribe(ctx context.Context, match func(changefeed.Change) bool, refresh func(context.Context)) store.Subscription {
	subCtx, cancelCtx := context.WithCancel(context.WithoutCancel(ctx))
	cancel := s.feed.Subscribe(match, func() {
		if subCtx.Err() == nil {
			refresh(subCtx)
		}
	})
	return store.SubscriptionFunc(func() error {
		cancelCtx()
		cancel()
		return nil
	})
}

func (s *Store) publishPage(p *models.Page) {
	s.feed.Publish(changefeed.Change{Table: changefeed.Pages, ID: p.ID.String(), Parent: p.WorkspaceID.String()})
}

func (s *Store) publishBlock(b *models.Block) {
	s.feed.Publish(changefeed.Change{Table: changefeed.Blocks, ID: b.ID.String(), Parent: b.PageID.String()})
}
