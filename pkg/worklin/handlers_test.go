package worklin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/blobstore"
	"github.com/worklin/worklin/pkg/client"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/worklin"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func testConfig(remote string) *worklin.Config {
	cfg := worklin.DefaultConfig()
	cfg.Remote = remote
	cfg.Snapshot = blobstore.Config{Backend: blobstore.BackendMemory}
	cfg.SessionSecret = "0123456789abcdef0123456789abcdef"
	cfg.Log.Level = "disabled"
	return cfg
}

func newApp(t *testing.T, remote string) *worklin.App {
	t.Helper()
	app, err := worklin.New(context.Background(), testConfig(remote))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, app.Close())
	})
	require.NoError(t, app.Open(context.Background()))
	return app
}

func serve(t *testing.T, app *worklin.App) (*httptest.Server, *client.Client) {
	t.Helper()
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return srv, client.NewClient(srv.URL)
}

func login(t *testing.T, app *worklin.App) *client.Client {
	t.Helper()
	_, c := serve(t, app)
	_, err := c.Login(context.Background(), "Ada")
	require.NoError(t, err)
	return c
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode)
}

func TestHealth(t *testing.T) {
	_, c := serve(t, newApp(t, worklin.RemoteNone))

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, worklin.RemoteNone, health.Remote)
	assert.Equal(t, "last-write-wins", health.Policy)
	assert.False(t, health.ReadOnly)
}

func TestRequireLogin(t *testing.T) {
	srv, c := serve(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	t.Run("api client gets 401", func(t *testing.T) {
		_, err := c.State(ctx)
		requireStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("browser is redirected", func(t *testing.T) {
		hc := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
		resp, err := hc.Get(srv.URL + "/api/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("event stream", func(t *testing.T) {
		_, err := c.Events(ctx)
		requireStatus(t, err, http.StatusUnauthorized)
	})
}

func TestLoginLogout(t *testing.T) {
	app := newApp(t, worklin.RemoteNone)
	_, c := serve(t, app)
	ctx := context.Background()

	user, err := c.Login(ctx, "  Ada ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.False(t, user.ID.IsZero())

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "Ada", app.Engine().Session().State().User.Name)

	require.NoError(t, c.Logout(ctx))
	assert.Nil(t, app.Engine().Session().State().User)
	_, err = c.Me(ctx)
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestLoginCookieFlags(t *testing.T) {
	tests := []struct {
		name   string
		secure bool
	}{
		{"plain http", false},
		{"behind https", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(worklin.RemoteNone)
			cfg.SecureCookie = tt.secure
			app, err := worklin.New(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, app.Close()) })
			require.NoError(t, app.Open(context.Background()))
			srv, _ := serve(t, app)

			resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(`{"name":"Ada"}`))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var cookie *http.Cookie
			for _, ck := range resp.Cookies() {
				if ck.Name == "worklin-session" {
					cookie = ck
				}
			}
			require.NotNil(t, cookie)
			assert.Equal(t, tt.secure, cookie.Secure)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
			assert.Equal(t, "/", cookie.Path)
		})
	}
}

func TestClientStaysSignedIn(t *testing.T) {
	_, c := serve(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	_, err := c.Login(ctx, "Ada")
	require.NoError(t, err)
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.Name)
}

func TestLoginWithoutName(t *testing.T) {
	_, c := serve(t, newApp(t, worklin.RemoteNone))

	user, err := c.Login(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, worklin.DefaultUserName, user.Name)
}

func TestLoginForm(t *testing.T) {
	srv, _ := serve(t, newApp(t, worklin.RemoteNone))

	resp, err := http.Get(srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	hc := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err = hc.PostForm(srv.URL+"/login", url.Values{"name": {"Grace"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	// the form login cookie works for API calls too
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	for _, ck := range resp.Cookies() {
		req.AddCookie(ck)
	}
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestOnboardingWorkspace(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	pages, err := c.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Welcome to Worklin", pages[0].Title)
	assert.Len(t, pages[0].Blocks, 4)

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, pages[0].ID, st.CurrentPageID)
	assert.True(t, st.SidebarOpen)
	assert.False(t, st.Loading)
}

func TestPageLifecycle(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	welcome, err := c.ListPages(ctx)
	require.NoError(t, err)

	page, err := c.CreatePage(ctx, "Notes", "")
	require.NoError(t, err)
	assert.Equal(t, "Notes", page.Title)
	assert.Equal(t, models.DefaultPageIcon, page.Icon)
	assert.Empty(t, page.Blocks)

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, page.ID, st.CurrentPageID)
	require.Len(t, st.Pages, 2)
	assert.Equal(t, page.ID, st.Pages[1].ID)

	title := "Meeting notes"
	updated, err := c.UpdatePage(ctx, page.ID, models.PagePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Meeting notes", updated.Title)
	assert.Equal(t, models.DefaultPageIcon, updated.Icon)
	assert.False(t, updated.UpdatedAt.Before(page.UpdatedAt))

	selected, err := c.SelectPage(ctx, welcome[0].ID)
	require.NoError(t, err)
	assert.Equal(t, welcome[0].ID, selected.ID)
	_, err = c.SelectPage(ctx, page.ID)
	require.NoError(t, err)

	require.NoError(t, c.DeletePage(ctx, page.ID))
	st, err = c.State(ctx)
	require.NoError(t, err)
	require.Len(t, st.Pages, 1)
	assert.Equal(t, welcome[0].ID, st.CurrentPageID)

	_, err = c.GetPage(ctx, page.ID)
	requireStatus(t, err, http.StatusNotFound)
	err = c.DeletePage(ctx, page.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestBlockLifecycle(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	page, err := c.CreatePage(ctx, "Todo", "")
	require.NoError(t, err)

	a, err := c.AddBlock(ctx, page.ID, models.BlockTypeCheckbox)
	require.NoError(t, err)
	assert.Equal(t, models.BlockTypeCheckbox, a.Type)
	assert.Equal(t, page.ID, a.PageID)
	assert.Equal(t, 0, a.Order)
	assert.False(t, a.Checked)

	b, err := c.AddBlock(ctx, page.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.BlockTypeParagraph, b.Type)
	assert.Equal(t, 1, b.Order)

	text := "buy milk"
	edited, err := c.UpdateBlock(ctx, page.ID, a.ID, models.BlockPatch{Text: &text})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", edited.Text)
	assert.Equal(t, models.BlockTypeCheckbox, edited.Type)

	checked, err := c.ToggleCheckbox(ctx, page.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, checked)
	checked, err = c.ToggleCheckbox(ctx, page.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, checked)

	require.NoError(t, c.DeleteBlock(ctx, page.ID, b.ID))
	blocks, err := c.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, a.ID, blocks[0].ID)
	assert.Equal(t, "buy milk", blocks[0].Text)
	assert.Equal(t, 0, blocks[0].Order)
}

func TestBlockOrdering(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	page, err := c.CreatePage(ctx, "Order", "")
	require.NoError(t, err)
	var ids []models.BlockID
	for range 3 {
		b, err := c.AddBlock(ctx, page.ID, models.BlockTypeParagraph)
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	a, b, cc := ids[0], ids[1], ids[2]

	order, err := c.MoveBlock(ctx, page.ID, cc, a)
	require.NoError(t, err)
	assert.Equal(t, []models.BlockID{cc, a, b}, order)

	order, err = c.ReorderBlocks(ctx, page.ID, []models.BlockID{b, a, cc})
	require.NoError(t, err)
	assert.Equal(t, []models.BlockID{b, a, cc}, order)

	blocks, err := c.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	for i, blk := range blocks {
		assert.Equal(t, order[i], blk.ID)
		assert.Equal(t, i, blk.Order)
	}

	_, err = c.MoveBlock(ctx, page.ID, models.NewBlockID(), a)
	requireStatus(t, err, http.StatusNotFound)
}

func TestEditErrors(t *testing.T) {
	srv, c := serve(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()
	_, err := c.Login(ctx, "Ada")
	require.NoError(t, err)

	pages, err := c.ListPages(ctx)
	require.NoError(t, err)
	pageID := pages[0].ID

	tests := []struct {
		name   string
		call   func() error
		status int
	}{
		{"unknown page", func() error {
			_, err := c.AddBlock(ctx, models.NewPageID(), models.BlockTypeParagraph)
			return err
		}, http.StatusNotFound},
		{"unknown block", func() error {
			_, err := c.ToggleCheckbox(ctx, pageID, models.NewBlockID())
			return err
		}, http.StatusNotFound},
		{"invalid block type", func() error {
			_, err := c.AddBlock(ctx, pageID, "table")
			return err
		}, http.StatusBadRequest},
		{"invalid type in patch", func() error {
			bad := models.BlockType("quote")
			_, err := c.UpdateBlock(ctx, pageID, pages[0].Blocks[0].ID, models.BlockPatch{Type: &bad})
			return err
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireStatus(t, tt.call(), tt.status)
		})
	}

	t.Run("malformed id", func(t *testing.T) {
		jar, err := cookiejar.New(nil)
		require.NoError(t, err)
		hc := &http.Client{Jar: jar}
		resp, err := hc.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(`{"name":"Ada"}`))
		require.NoError(t, err)
		resp.Body.Close()

		for _, path := range []string{"/api/pages/not-a-uuid", "/api/pages/" + pageID.String() + "/blocks/42/toggle"} {
			method := http.MethodGet
			if strings.HasSuffix(path, "toggle") {
				method = http.MethodPost
			}
			req, err := http.NewRequest(method, srv.URL+path, nil)
			require.NoError(t, err)
			req.Header.Set("Accept", "application/json")
			resp, err := hc.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSidebar(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx := context.Background()

	open, err := c.Sidebar(ctx, nil)
	require.NoError(t, err)
	assert.False(t, open)

	yes := true
	open, err = c.Sidebar(ctx, &yes)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = c.Sidebar(ctx, &yes)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestBlockTypes(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))

	types, err := c.BlockTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 6)
	assert.Equal(t, client.BlockTypeInfo{Type: models.BlockTypeParagraph, Label: "Text"}, types[0])
	assert.Equal(t, client.BlockTypeInfo{Type: models.BlockTypeCheckbox, Label: "Todo"}, types[5])
}

func TestReadOnlyMode(t *testing.T) {
	app := newApp(t, worklin.RemoteNone)
	c := login(t, app)
	ctx := context.Background()

	require.NoError(t, c.SetReadOnly(ctx, true))
	ro, err := c.ReadOnly(ctx)
	require.NoError(t, err)
	assert.True(t, ro)
	assert.True(t, app.IsReadOnly())

	_, err = c.CreatePage(ctx, "Blocked", "")
	requireStatus(t, err, http.StatusForbidden)

	pages, err := c.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	// UI state is not a write
	_, err = c.Sidebar(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, c.SetReadOnly(ctx, false))
	_, err = c.CreatePage(ctx, "Allowed", "")
	require.NoError(t, err)
}

func TestMemoryRemote(t *testing.T) {
	app := newApp(t, worklin.RemoteMemory)
	c := login(t, app)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, worklin.RemoteMemory, health.Remote)

	ws, err := c.Workspace(ctx)
	require.NoError(t, err)
	assert.Equal(t, worklin.DefaultWorkspaceID, ws.ID.String())

	page, err := c.CreatePage(ctx, "Synced", "")
	require.NoError(t, err)
	block, err := c.AddBlock(ctx, page.ID, models.BlockTypeHeading1)
	require.NoError(t, err)
	app.Engine().Wait()

	remote := app.Remote()
	require.NotNil(t, remote)
	stored, err := remote.GetPage(ctx, page.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Synced", stored.Title)

	assert.Eventually(t, func() bool {
		blocks, err := c.ListBlocks(ctx, page.ID)
		return err == nil && len(blocks) == 1 && blocks[0].ID == block.ID
	}, waitFor, tick)
}

func TestEvents(t *testing.T) {
	c := login(t, newApp(t, worklin.RemoteNone))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Events(ctx)
	require.NoError(t, err)

	first := <-events
	require.Equal(t, client.EventState, first.Type)
	require.NotNil(t, first.State)
	assert.Len(t, first.State.Pages, 1)

	page, err := c.CreatePage(ctx, "Streamed", "")
	require.NoError(t, err)

	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event stream closed")
			if ev.Type != client.EventState || ev.State.CurrentPageID != page.ID {
				continue
			}
			assert.Len(t, ev.State.Pages, 2)
			return
		case <-deadline:
			t.Fatal("no state event for the new page")
		}
	}
}
