package store

import (
	"context"
	"errors"

	"github.com/worklin/worklin/pkg/models"
)

var (
	// ErrNotFound is returned by updates that target a missing entity.
	// Reads report a missing entity as (nil, nil) instead.
	ErrNotFound = errors.New("entity not found")

	// ErrReadOnly is returned by every write on a read-only store.
	ErrReadOnly = errors.New("operation denied: store is read-only")

	// ErrUnknownBlocks is returned by ReorderBlocks when an id does not name a
	// block of the page. Nothing is written in that case.
	ErrUnknownBlocks = errors.New("reorder references blocks that are not on the page")
)

// Subscription is a live change listener. It stays active until Cancel is
// called; there is no timeout.
type Subscription interface {
	// Cancel stops callback delivery and releases the listener. A callback
	// that is already running may still complete.
	Cancel() error
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Cancel() error { return f() }

// RemoteStore is the hosted document store the session mirrors its edits to.
//
// Entities are normalized: pages and blocks live in separate collections and
// blocks reference their page through PageID. Every write is stamped with the
// store's own clock, never the caller's.
//
// Reads return (nil, nil) for a missing entity. Updates of a missing entity
// fail with ErrNotFound.
type RemoteStore interface {
	// CreateWorkspace stores a new workspace. A zero ID is replaced by a fresh
	// one. The stored entity is returned.
	CreateWorkspace(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error)
	GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error)
	UpdateWorkspace(ctx context.Context, id models.WorkspaceID, patch models.WorkspacePatch) (*models.Workspace, error)
	DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error
	// SubscribeWorkspace calls fn with the current workspace on registration
	// and after every change. Deleted workspaces are not reported.
	SubscribeWorkspace(ctx context.Context, id models.WorkspaceID, fn func(*models.Workspace)) (Subscription, error)

	// CreatePage stores a new page. Its blocks are never stored with it; the
	// returned page always has an empty block slice.
	CreatePage(ctx context.Context, page *models.Page) (*models.Page, error)
	GetPage(ctx context.Context, id models.PageID) (*models.Page, error)
	// ListPages returns the pages of a workspace, most recently updated first.
	ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error)
	UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error)
	// DeletePage removes the page only. Its blocks stay behind.
	DeletePage(ctx context.Context, id models.PageID) error
	// DeletePageCascade removes the page and all of its blocks atomically.
	DeletePageCascade(ctx context.Context, id models.PageID) error
	SubscribePage(ctx context.Context, id models.PageID, fn func(*models.Page)) (Subscription, error)

	// CreateBlock stores a new block with the order it carries.
	CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error)
	GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error)
	// ListBlocks returns the blocks of a page by ascending order. Equal orders
	// fall back to creation time.
	ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error)
	UpdateBlock(ctx context.Context, id models.BlockID, patch models.BlockPatch) (*models.Block, error)
	DeleteBlock(ctx context.Context, id models.BlockID) error
	// ReorderBlocks sets each block's order to its index in blockIDs as a
	// single all-or-nothing batch.
	ReorderBlocks(ctx context.Context, pageID models.PageID, blockIDs []models.BlockID) error
	// SubscribeBlocks calls fn with the page's ordered blocks on registration
	// and after every change to any of them.
	SubscribeBlocks(ctx context.Context, pageID models.PageID, fn func([]*models.Block)) (Subscription, error)

	// Migrate prepares the schema, indexes and change notification plumbing.
	Migrate(ctx context.Context) error
	Close() error
}

// Repository is the backend-agnostic view of pages as owners of their blocks.
//
// Implementations decide how blocks are physically kept (embedded in the page
// or in their own collection). DeleteCascade always removes the blocks too.
type Repository interface {
	// ListPages returns every page of the workspace with its blocks.
	ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error)
	// LoadPage returns the page with its ordered blocks, or nil when missing.
	LoadPage(ctx context.Context, id models.PageID) (*models.Page, error)
	// SavePageWithBlocks upserts the page and makes its stored block set equal
	// to page.Blocks, in that order.
	SavePageWithBlocks(ctx context.Context, page *models.Page) error
	DeleteCascade(ctx context.Context, id models.PageID) error
}
