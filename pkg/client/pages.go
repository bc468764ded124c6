package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/worklin/worklin/pkg/models"
)

func (c *Client) ListPages(ctx context.Context) ([]*models.Page, error) {
	result, err := call[[]*models.Page](ctx, c, http.MethodGet, "/api/pages", nil)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// CreatePage adds a page and makes it the current page. Empty title and icon
// get the server's defaults.
func (c *Client) CreatePage(ctx context.Context, title, icon string) (*models.Page, error) {
	return call[models.Page](ctx, c, http.MethodPost, "/api/pages", CreatePageRequest{Title: title, Icon: icon})
}

func (c *Client) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	return call[models.Page](ctx, c, http.MethodGet, fmt.Sprintf("/api/pages/%s", id), nil)
}

func (c *Client) UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error) {
	return call[models.Page](ctx, c, http.MethodPut, fmt.Sprintf("/api/pages/%s", id), patch)
}

func (c *Client) DeletePage(ctx context.Context, id models.PageID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/pages/%s", id), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

func (c *Client) SelectPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	return call[models.Page](ctx, c, http.MethodPut, fmt.Sprintf("/api/pages/%s/select", id), nil)
}

func (c *Client) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	result, err := call[[]*models.Block](ctx, c, http.MethodGet, fmt.Sprintf("/api/pages/%s/blocks", pageID), nil)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

func (c *Client) AddBlock(ctx context.Context, pageID models.PageID, t models.BlockType) (*models.Block, error) {
	return call[models.Block](ctx, c, http.MethodPost, fmt.Sprintf("/api/pages/%s/blocks", pageID), CreateBlockRequest{Type: t})
}

func (c *Client) UpdateBlock(ctx context.Context, pageID models.PageID, blockID models.BlockID, patch models.BlockPatch) (*models.Block, error) {
	return call[models.Block](ctx, c, http.MethodPatch, fmt.Sprintf("/api/pages/%s/blocks/%s", pageID, blockID), patch)
}

func (c *Client) DeleteBlock(ctx context.Context, pageID models.PageID, blockID models.BlockID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/pages/%s/blocks/%s", pageID, blockID), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// ToggleCheckbox flips the block's checked flag and returns the new value.
func (c *Client) ToggleCheckbox(ctx context.Context, pageID models.PageID, blockID models.BlockID) (bool, error) {
	result, err := call[ToggleResponse](ctx, c, http.MethodPost, fmt.Sprintf("/api/pages/%s/blocks/%s/toggle", pageID, blockID), nil)
	if err != nil {
		return false, err
	}
	return result.Checked, nil
}

func (c *Client) ReorderBlocks(ctx context.Context, pageID models.PageID, ids []models.BlockID) ([]models.BlockID, error) {
	result, err := call[BlockOrderResponse](ctx, c, http.MethodPut, fmt.Sprintf("/api/pages/%s/blocks/reorder", pageID), ReorderRequest{BlockIDs: ids})
	if err != nil {
		return nil, err
	}
	return result.BlockIDs, nil
}

// MoveBlock drops source onto target and returns the new order.
func (c *Client) MoveBlock(ctx context.Context, pageID models.PageID, source, target models.BlockID) ([]models.BlockID, error) {
	result, err := call[BlockOrderResponse](ctx, c, http.MethodPost, fmt.Sprintf("/api/pages/%s/blocks/move", pageID), MoveRequest{Source: source, Target: target})
	if err != nil {
		return nil, err
	}
	return result.BlockIDs, nil
}
