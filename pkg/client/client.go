// Package client is a typed HTTP client for the Worklin API.
//
// The client keeps the login cookie in its own cookie jar, so a successful
// [Client.Login] authenticates every later call made with the same client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/session"
)

// APIError is returned for every response with a status of 400 or above.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, message=%s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// WithHTTPClient replaces the underlying client, e.g. with the one of an
// httptest.Server. A client without a cookie jar cannot stay logged in.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc.Jar == nil {
		hc.Jar = c.httpClient.Jar
	}
	c.httpClient = hc
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var payload ErrorResponse
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
			payload.Error = string(body)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// call performs a request and decodes the JSON response into a new T.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var result T
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/health", nil)
}

// State returns the whole session state.
func (c *Client) State(ctx context.Context) (*session.State, error) {
	return call[session.State](ctx, c, http.MethodGet, "/api/state", nil)
}

func (c *Client) Workspace(ctx context.Context) (*models.Workspace, error) {
	return call[models.Workspace](ctx, c, http.MethodGet, "/api/workspace", nil)
}

func (c *Client) BlockTypes(ctx context.Context) ([]BlockTypeInfo, error) {
	result, err := call[[]BlockTypeInfo](ctx, c, http.MethodGet, "/api/block-types", nil)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// Sidebar sets the sidebar state. A nil open toggles it.
func (c *Client) Sidebar(ctx context.Context, open *bool) (bool, error) {
	result, err := call[SidebarResponse](ctx, c, http.MethodPut, "/api/ui/sidebar", SidebarRequest{Open: open})
	if err != nil {
		return false, err
	}
	return result.SidebarOpen, nil
}

func (c *Client) ReadOnly(ctx context.Context) (bool, error) {
	result, err := call[ReadOnlyMode](ctx, c, http.MethodGet, "/api/admin/read-only", nil)
	if err != nil {
		return false, err
	}
	return result.ReadOnly, nil
}

func (c *Client) SetReadOnly(ctx context.Context, readOnly bool) error {
	_, err := call[ReadOnlyMode](ctx, c, http.MethodPut, "/api/admin/read-only", ReadOnlyMode{ReadOnly: readOnly})
	return err
}
