package reconcile

import (
	"context"
	"fmt"

	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/session"
)

// AddPage creates a page, appends it to the session and selects it.
func (e *Engine) AddPage(ctx context.Context, title, icon string) (*models.Page, error) {
	page := models.NewPage(title, icon)
	page.WorkspaceID = e.WorkspaceID()
	e.session.AddPage(page)

	if e.remote != nil {
		created := page.Clone()
		e.enqueue("CreatePage", page.ID.String(), func(ctx context.Context) error {
			_, err := e.remote.CreatePage(ctx, created)
			return err
		})
	}
	if err := e.SelectPage(ctx, page.ID); err != nil {
		return page, err
	}
	return page, nil
}

// DeletePage removes the page and its blocks. When it was the current page,
// the session selects the first remaining page and the subscriptions follow.
func (e *Engine) DeletePage(ctx context.Context, id models.PageID) error {
	if !e.session.DeletePage(id) {
		return fmt.Errorf("%w: %s", ErrPageNotLoaded, id)
	}
	e.enqueue("DeleteCascade", id.String(), func(ctx context.Context) error {
		return e.repo.DeleteCascade(ctx, id)
	})

	current := e.session.State().CurrentPageID
	e.mu.Lock()
	following := e.pageID
	e.mu.Unlock()
	if following == current {
		return nil
	}
	return e.follow(ctx, current)
}

func (e *Engine) UpdatePageTitle(id models.PageID, title string) error {
	return e.updatePage(id, models.PagePatch{Title: &title})
}

func (e *Engine) UpdatePageIcon(id models.PageID, icon string) error {
	return e.updatePage(id, models.PagePatch{Icon: &icon})
}

// UpdatePage merges patch into the page. An empty patch is a no-op.
func (e *Engine) UpdatePage(id models.PageID, patch models.PagePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	return e.updatePage(id, patch)
}

func (e *Engine) updatePage(id models.PageID, patch models.PagePatch) error {
	if !e.session.UpdatePage(id, patch) {
		return fmt.Errorf("%w: %s", ErrPageNotLoaded, id)
	}
	if e.remote != nil {
		e.enqueue("UpdatePage", id.String(), func(ctx context.Context) error {
			_, err := e.remote.UpdatePage(ctx, id, patch)
			return err
		})
	}
	return nil
}

// AddBlock appends a new block of type t to the page.
func (e *Engine) AddBlock(pageID models.PageID, t models.BlockType) (*models.Block, error) {
	if t == "" {
		t = models.BlockTypeParagraph
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	block := models.NewBlock(t, 0)
	if !e.session.AddBlock(pageID, block) {
		return nil, fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}

	var added *models.Block
	if page := e.session.Page(pageID); page != nil {
		added, _ = page.Block(block.ID)
	}
	if added == nil {
		// a remote snapshot replaced the blocks in between; the write below
		// still lands and a later snapshot brings the block back
		added = block
		added.PageID = pageID
	}

	if e.remote != nil {
		created := added.Clone()
		e.enqueue("CreateBlock", block.ID.String(), func(ctx context.Context) error {
			_, err := e.remote.CreateBlock(ctx, created)
			return err
		})
	}
	return added.Clone(), nil
}

// UpdateBlock merges patch into the block.
func (e *Engine) UpdateBlock(pageID models.PageID, blockID models.BlockID, patch models.BlockPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}
	if !e.session.UpdateBlock(pageID, blockID, patch) {
		return e.missing(pageID, blockID)
	}
	if e.remote != nil {
		e.enqueue("UpdateBlock", blockID.String(), func(ctx context.Context) error {
			_, err := e.remote.UpdateBlock(ctx, blockID, patch)
			return err
		})
	}
	return nil
}

func (e *Engine) SetBlockText(pageID models.PageID, blockID models.BlockID, text string) error {
	return e.UpdateBlock(pageID, blockID, models.BlockPatch{Text: &text})
}

func (e *Engine) SetBlockType(pageID models.PageID, blockID models.BlockID, t models.BlockType) error {
	return e.UpdateBlock(pageID, blockID, models.BlockPatch{Type: &t})
}

// ToggleCheckbox flips the block's checked flag and leaves every other field
// as it is. It returns the new value.
func (e *Engine) ToggleCheckbox(pageID models.PageID, blockID models.BlockID) (bool, error) {
	block, err := e.block(pageID, blockID)
	if err != nil {
		return false, err
	}
	checked := !block.Checked
	return checked, e.UpdateBlock(pageID, blockID, models.BlockPatch{Checked: &checked})
}

// DeleteBlock removes the block. Remotely the remaining blocks are
// renumbered as well, so the stored orders stay equal to the positions and a
// later append sorts last.
func (e *Engine) DeleteBlock(pageID models.PageID, blockID models.BlockID) error {
	if !e.session.DeleteBlock(pageID, blockID) {
		return e.missing(pageID, blockID)
	}
	if e.remote == nil {
		return nil
	}
	var remaining []models.BlockID
	if page := e.session.Page(pageID); page != nil {
		remaining = models.BlockIDs(page.Blocks)
	}
	e.enqueue("DeleteBlock", blockID.String(), func(ctx context.Context) error {
		if err := e.remote.DeleteBlock(ctx, blockID); err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}
		return e.remote.ReorderBlocks(ctx, pageID, remaining)
	})
	return nil
}

// MoveBlock drops source onto target, as a drag gesture does, and returns
// the resulting block order.
func (e *Engine) MoveBlock(pageID models.PageID, source, target models.BlockID) ([]models.BlockID, error) {
	page := e.session.Page(pageID)
	if page == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}
	for _, id := range []models.BlockID{source, target} {
		if b, _ := page.Block(id); b == nil {
			return nil, fmt.Errorf("%w: %s", ErrBlockNotLoaded, id)
		}
	}
	ids := session.MoveBefore(models.BlockIDs(page.Blocks), source, target)
	return e.ReorderBlocks(pageID, ids)
}

// ReorderBlocks applies a new block order locally, then writes the complete
// order to the remote store as one batch. Blocks missing from ids keep their
// relative order after the named ones. The applied order is returned.
func (e *Engine) ReorderBlocks(pageID models.PageID, ids []models.BlockID) ([]models.BlockID, error) {
	if !e.session.ReorderBlocks(pageID, ids) {
		return nil, fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}
	page := e.session.Page(pageID)
	if page == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}
	order := models.BlockIDs(page.Blocks)

	if e.remote != nil {
		e.enqueue("ReorderBlocks", pageID.String(), func(ctx context.Context) error {
			return e.remote.ReorderBlocks(ctx, pageID, order)
		})
	}
	return order, nil
}

// ToggleSidebar is a session-only change.
func (e *Engine) ToggleSidebar() {
	e.session.ToggleSidebar()
}

func (e *Engine) block(pageID models.PageID, blockID models.BlockID) (*models.Block, error) {
	page := e.session.Page(pageID)
	if page == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}
	b, _ := page.Block(blockID)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotLoaded, blockID)
	}
	return b, nil
}

func (e *Engine) missing(pageID models.PageID, blockID models.BlockID) error {
	if e.session.Page(pageID) == nil {
		return fmt.Errorf("%w: %s", ErrPageNotLoaded, pageID)
	}
	return fmt.Errorf("%w: %s", ErrBlockNotLoaded, blockID)
}
