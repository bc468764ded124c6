package store

import (
	"context"
	"fmt"

	"github.com/worklin/worklin/pkg/models"
)

// Normalized implements Repository over a RemoteStore, where blocks live in
// their own collection.
//
// SavePageWithBlocks is a sequence of single-entity writes followed by one
// batch reorder, so a failure part way leaves earlier writes applied.
// DeleteCascade relies on the backend's atomic DeletePageCascade.
type Normalized struct {
	remote RemoteStore
}

func NewNormalized(remote RemoteStore) *Normalized {
	return &Normalized{remote: remote}
}

func (n *Normalized) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	pages, err := n.remote.ListPages(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		blocks, err := n.remote.ListBlocks(ctx, page.ID)
		if err != nil {
			return nil, err
		}
		page.Blocks = blocks
	}
	return pages, nil
}

func (n *Normalized) LoadPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	page, err := n.remote.GetPage(ctx, id)
	if err != nil || page == nil {
		return nil, err
	}
	blocks, err := n.remote.ListBlocks(ctx, id)
	if err != nil {
		return nil, err
	}
	page.Blocks = blocks
	return page, nil
}

func (n *Normalized) SavePageWithBlocks(ctx context.Context, page *models.Page) error {
	existing, err := n.remote.GetPage(ctx, page.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		if _, err := n.remote.CreatePage(ctx, page); err != nil {
			return fmt.Errorf("failed to create page: %w", err)
		}
	} else {
		patch := models.PagePatch{Title: &page.Title, Icon: &page.Icon}
		if _, err := n.remote.UpdatePage(ctx, page.ID, patch); err != nil {
			return fmt.Errorf("failed to update page: %w", err)
		}
	}

	stored, err := n.remote.ListBlocks(ctx, page.ID)
	if err != nil {
		return err
	}
	keep := make(map[models.BlockID]bool, len(page.Blocks))
	for _, b := range page.Blocks {
		keep[b.ID] = true
	}
	current := make(map[models.BlockID]bool, len(stored))
	for _, b := range stored {
		current[b.ID] = true
		if !keep[b.ID] {
			if err := n.remote.DeleteBlock(ctx, b.ID); err != nil {
				return fmt.Errorf("failed to delete block: %w", err)
			}
		}
	}

	for i, b := range page.Blocks {
		if current[b.ID] {
			patch := models.BlockPatch{Type: &b.Type, Text: &b.Text, Checked: &b.Checked}
			if _, err := n.remote.UpdateBlock(ctx, b.ID, patch); err != nil {
				return fmt.Errorf("failed to update block: %w", err)
			}
			continue
		}
		create := b.Clone()
		create.PageID = page.ID
		create.Order = i
		if _, err := n.remote.CreateBlock(ctx, create); err != nil {
			return fmt.Errorf("failed to create block: %w", err)
		}
	}

	if len(page.Blocks) == 0 {
		return nil
	}
	return n.remote.ReorderBlocks(ctx, page.ID, models.BlockIDs(page.Blocks))
}

func (n *Normalized) DeleteCascade(ctx context.Context, id models.PageID) error {
	return n.remote.DeletePageCascade(ctx, id)
}
