package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/worklin/worklin/pkg/models"
)

// Login signs in as the demo user with the given display name. The session
// cookie is kept for later calls.
func (c *Client) Login(ctx context.Context, name string) (*models.User, error) {
	result, err := call[AuthResponse](ctx, c, http.MethodPost, "/api/auth/login", LoginRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return result.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return fmt.Errorf("failed to process logout response: %w", err)
	}
	return nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	result, err := call[AuthResponse](ctx, c, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	return result.User, nil
}
