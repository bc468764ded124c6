package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/blobstore"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/reconcile"
	"github.com/worklin/worklin/pkg/store/local"
	"github.com/worklin/worklin/pkg/store/memory"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type harness struct {
	engine *reconcile.Engine
	local  *local.Adapter
	remote *memory.Store
}

func newHarness(t *testing.T, remote *memory.Store) *harness {
	t.Helper()
	h := &harness{
		local:  local.New(blobstore.NewMemoryStore()),
		remote: remote,
	}
	cfg := reconcile.Config{Local: h.local, Logger: zerolog.Nop()}
	if remote != nil {
		cfg.Remote = remote
	}
	h.engine = reconcile.New(cfg)
	t.Cleanup(func() {
		require.NoError(t, h.engine.Close())
	})
	require.NoError(t, h.engine.Open(context.Background()))
	return h
}

// blankPage adds a page and waits until the remote copy exists and the
// session holds n blocks created through the engine.
func (h *harness) blankPage(t *testing.T, n int) (*models.Page, []models.BlockID) {
	t.Helper()
	page, err := h.engine.AddPage(context.Background(), "Scratch", "")
	require.NoError(t, err)

	var ids []models.BlockID
	for range n {
		b, err := h.engine.AddBlock(page.ID, models.BlockTypeParagraph)
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	h.engine.Wait()
	h.eventuallyBlocks(t, page.ID, ids)
	return page, ids
}

func (h *harness) eventuallyBlocks(t *testing.T, pageID models.PageID, want []models.BlockID) {
	t.Helper()
	require.Eventually(t, func() bool {
		p := h.engine.Session().Page(pageID)
		return p != nil && assert.ObjectsAreEqual(want, models.BlockIDs(p.Blocks))
	}, waitFor, tick)
}

func TestPolicy(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, reconcile.LastWriteWins, h.engine.Policy())
	assert.Equal(t, "last-write-wins", h.engine.Policy().String())
}

func TestOpenLocalOnly(t *testing.T) {
	h := newHarness(t, nil)

	st := h.engine.Session().State()
	require.Len(t, st.Pages, 1)
	require.NotNil(t, st.CurrentPage())
	assert.Equal(t, "Welcome to Worklin", st.CurrentPage().Title)
	assert.False(t, st.Loading)
}

func TestAutosave(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	page, err := h.engine.AddPage(ctx, "Ideas", "💡")
	require.NoError(t, err)
	assert.Equal(t, page.ID, h.engine.Session().State().CurrentPageID)

	block, err := h.engine.AddBlock(page.ID, models.BlockTypeHeading2)
	require.NoError(t, err)
	require.NoError(t, h.engine.SetBlockText(page.ID, block.ID, "first"))

	saved, err := h.local.Read(ctx)
	require.NoError(t, err)
	require.Len(t, saved.Pages, 2)
	p, _ := saved.Page(page.ID)
	require.NotNil(t, p)
	require.Len(t, p.Blocks, 1)
	assert.Equal(t, "first", p.Blocks[0].Text)

	t.Run("deleting every page saves an empty workspace", func(t *testing.T) {
		for _, p := range h.engine.Session().State().Pages {
			require.NoError(t, h.engine.DeletePage(ctx, p.ID))
		}
		h.engine.Wait()

		saved, err := h.local.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, saved.Pages)
		assert.Nil(t, h.engine.Session().State().CurrentPage())
	})
}

func TestToggleCheckbox(t *testing.T) {
	h := newHarness(t, nil)
	pageID := h.engine.Session().State().CurrentPageID

	block, err := h.engine.AddBlock(pageID, models.BlockTypeCheckbox)
	require.NoError(t, err)
	require.NoError(t, h.engine.SetBlockText(pageID, block.ID, "water plants"))
	before := h.engine.Session().Page(pageID)
	b, _ := before.Block(block.ID)

	time.Sleep(2 * time.Millisecond)
	checked, err := h.engine.ToggleCheckbox(pageID, block.ID)
	require.NoError(t, err)
	assert.True(t, checked)

	after := h.engine.Session().Page(pageID)
	a, _ := after.Block(block.ID)
	assert.True(t, a.Checked)
	assert.Equal(t, b.Text, a.Text)
	assert.Equal(t, b.Type, a.Type)
	assert.Equal(t, b.Order, a.Order)
	assert.Equal(t, b.ID, a.ID)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	checked, err = h.engine.ToggleCheckbox(pageID, block.ID)
	require.NoError(t, err)
	assert.False(t, checked)
}

func TestEditErrors(t *testing.T) {
	h := newHarness(t, nil)
	pageID := h.engine.Session().State().CurrentPageID

	_, err := h.engine.AddBlock(models.NewPageID(), models.BlockTypeParagraph)
	assert.ErrorIs(t, err, reconcile.ErrPageNotLoaded)

	_, err = h.engine.AddBlock(pageID, "quote")
	assert.ErrorIs(t, err, models.ErrInvalidBlockType)

	assert.ErrorIs(t, h.engine.DeleteBlock(pageID, models.NewBlockID()), reconcile.ErrBlockNotLoaded)
	assert.ErrorIs(t, h.engine.SetBlockType(pageID, models.NewBlockID(), "quote"), models.ErrInvalidBlockType)
	assert.ErrorIs(t, h.engine.UpdatePageTitle(models.NewPageID(), "x"), reconcile.ErrPageNotLoaded)

	_, err = h.engine.MoveBlock(pageID, models.NewBlockID(), models.NewBlockID())
	assert.ErrorIs(t, err, reconcile.ErrBlockNotLoaded)
}

func TestOpenSeedsRemoteWorkspace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())

	wsID := h.engine.WorkspaceID()
	require.False(t, wsID.IsZero())

	pages, err := h.remote.ListPages(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Welcome to Worklin", pages[0].Title)

	blocks, err := h.remote.ListBlocks(ctx, pages[0].ID)
	require.NoError(t, err)
	assert.Len(t, blocks, 4)

	t.Run("a second session reads the remote pages", func(t *testing.T) {
		other := reconcile.New(reconcile.Config{
			Local:       local.New(blobstore.NewMemoryStore()),
			Remote:      h.remote,
			WorkspaceID: wsID,
			Logger:      zerolog.Nop(),
		})
		defer other.Close()
		require.NoError(t, other.Open(ctx))

		st := other.Session().State()
		require.Len(t, st.Pages, 1)
		assert.Equal(t, pages[0].ID, st.Pages[0].ID)
		assert.Len(t, st.Pages[0].Blocks, 4)
	})
}

func TestMoveBlockWritesBatchOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())
	page, ids := h.blankPage(t, 3)
	a, b, c := ids[0], ids[1], ids[2]

	order, err := h.engine.MoveBlock(page.ID, c, a)
	require.NoError(t, err)
	assert.Equal(t, []models.BlockID{c, a, b}, order)
	assert.Equal(t, []models.BlockID{c, a, b}, models.BlockIDs(h.engine.Session().Page(page.ID).Blocks))

	h.engine.Wait()
	remote, err := h.remote.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	got := map[models.BlockID]int{}
	for _, blk := range remote {
		got[blk.ID] = blk.Order
	}
	assert.Equal(t, map[models.BlockID]int{c: 0, a: 1, b: 2}, got)
	h.eventuallyBlocks(t, page.ID, []models.BlockID{c, a, b})
}

func TestAppendAfterDeleteSortsLast(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())
	page, ids := h.blankPage(t, 4)
	c, d := ids[2], ids[3]

	require.NoError(t, h.engine.DeleteBlock(page.ID, ids[0]))
	require.NoError(t, h.engine.DeleteBlock(page.ID, ids[1]))
	e, err := h.engine.AddBlock(page.ID, models.BlockTypeParagraph)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Order)

	h.engine.Wait()
	remote, err := h.remote.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []models.BlockID{c, d, e.ID}, models.BlockIDs(remote))
	for i, blk := range remote {
		assert.Equal(t, i, blk.Order)
	}
	h.eventuallyBlocks(t, page.ID, []models.BlockID{c, d, e.ID})
}

func TestRemoteSnapshotReplacesBlocks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())
	page, ids := h.blankPage(t, 3)

	// another writer removes the middle block
	require.NoError(t, h.remote.DeleteBlock(ctx, ids[1]))

	h.eventuallyBlocks(t, page.ID, []models.BlockID{ids[0], ids[2]})
}

func TestRemotePageChangesReachSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())
	page, _ := h.blankPage(t, 1)

	title := "Renamed elsewhere"
	_, err := h.remote.UpdatePage(ctx, page.ID, models.PagePatch{Title: &title})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := h.engine.Session().Page(page.ID)
		return p != nil && p.Title == title && len(p.Blocks) == 1
	}, waitFor, tick)
}

func TestDeletePageCascadesRemotely(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.New())
	page, ids := h.blankPage(t, 2)

	require.NoError(t, h.engine.DeletePage(ctx, page.ID))
	st := h.engine.Session().State()
	require.NotNil(t, st.CurrentPage())
	assert.Equal(t, "Welcome to Worklin", st.CurrentPage().Title)

	h.engine.Wait()
	p, err := h.remote.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
	for _, id := range ids {
		b, err := h.remote.GetBlock(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestSyncErrors(t *testing.T) {
	offline := errors.New("offline")
	remote := memory.New(memory.WithFailures(func(op string) error {
		if op == "UpdateBlock" {
			return offline
		}
		return nil
	}))
	h := newHarness(t, remote)
	page, ids := h.blankPage(t, 1)

	var mu sync.Mutex
	var got []reconcile.SyncError
	cancel := h.engine.OnSyncError(func(e reconcile.SyncError) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	require.NoError(t, h.engine.SetBlockText(page.ID, ids[0], "unsent"), "edits never wait on the remote store")
	h.engine.Wait()

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "UpdateBlock", got[0].Op)
	assert.Equal(t, ids[0].String(), got[0].ID)
	assert.ErrorIs(t, got[0], offline)
	assert.False(t, got[0].At.IsZero())
	mu.Unlock()

	b, err := remote.GetBlock(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Empty(t, b.Text)

	cancel()
	require.NoError(t, h.engine.SetBlockText(page.ID, ids[0], "again"))
	h.engine.Wait()
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestOpenFallsBackToLocalSnapshot(t *testing.T) {
	remote := memory.New(memory.WithFailures(func(op string) error {
		return errors.New("unreachable")
	}))
	h := &harness{local: local.New(blobstore.NewMemoryStore()), remote: remote}
	h.engine = reconcile.New(reconcile.Config{Local: h.local, Remote: remote, Logger: zerolog.Nop()})
	defer h.engine.Close()

	var got []reconcile.SyncError
	h.engine.OnSyncError(func(e reconcile.SyncError) { got = append(got, e) })

	require.NoError(t, h.engine.Open(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "Open", got[0].Op)

	st := h.engine.Session().State()
	require.Len(t, st.Pages, 1)
	assert.Equal(t, "Welcome to Worklin", st.Pages[0].Title)
}

func TestReadOnlySkipsSnapshot(t *testing.T) {
	ctx := context.Background()
	var readOnly atomic.Bool
	remote := memory.New()
	snapshot := local.New(blobstore.NewMemoryStore())
	engine := reconcile.New(reconcile.Config{
		Local:    snapshot,
		Remote:   remote,
		Logger:   zerolog.Nop(),
		ReadOnly: readOnly.Load,
	})
	t.Cleanup(func() { require.NoError(t, engine.Close()) })
	require.NoError(t, engine.Open(ctx))
	page := engine.Session().State().CurrentPage()
	require.NotNil(t, page)
	engine.Wait()

	readOnly.Store(true)
	title := "Renamed elsewhere"
	_, err := remote.UpdatePage(ctx, page.ID, models.PagePatch{Title: &title})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p := engine.Session().Page(page.ID)
		return p != nil && p.Title == title
	}, waitFor, tick)

	saved, err := snapshot.Read(ctx)
	require.NoError(t, err)
	require.Len(t, saved.Pages, 1)
	assert.Equal(t, "Welcome to Worklin", saved.Pages[0].Title)

	readOnly.Store(false)
	_, err = engine.AddPage(ctx, "Writable again", "")
	require.NoError(t, err)
	saved, err = snapshot.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, saved.Pages, 2)
}
