// Package storetest holds the conformance suite shared by every
// [github.com/worklin/worklin/pkg/store.RemoteStore] backend.
//
// Backends call [Run] from their own tests. The memory backend runs it on
// every test run; database backends run it from integration tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.RemoteStore

// tick separates writes so that server-assigned timestamps differ.
const tick = 15 * time.Millisecond

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("workspaces", func(t *testing.T) { testWorkspaces(t, open(t, newStore)) })
	t.Run("pages", func(t *testing.T) { testPages(t, open(t, newStore)) })
	t.Run("page delete does not cascade", func(t *testing.T) { testDeletePage(t, open(t, newStore)) })
	t.Run("page cascade delete", func(t *testing.T) { testDeletePageCascade(t, open(t, newStore)) })
	t.Run("blocks", func(t *testing.T) { testBlocks(t, open(t, newStore)) })
	t.Run("reorder", func(t *testing.T) { testReorder(t, open(t, newStore)) })
	t.Run("reorder is all or nothing", func(t *testing.T) { testReorderAtomic(t, open(t, newStore)) })
	t.Run("block subscription", func(t *testing.T) { testSubscribeBlocks(t, open(t, newStore)) })
	t.Run("page subscription", func(t *testing.T) { testSubscribePage(t, open(t, newStore)) })
	t.Run("normalized repository", func(t *testing.T) { testNormalized(t, open(t, newStore)) })
}

func open(t *testing.T, newStore Factory) store.RemoteStore {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createPage(t *testing.T, s store.RemoteStore, ws models.WorkspaceID, title string) *models.Page {
	t.Helper()
	page := models.NewPage(title, "")
	page.WorkspaceID = ws
	created, err := s.CreatePage(context.Background(), page)
	require.NoError(t, err)
	return created
}

// createBlocks appends blocks after the ones the page already has.
func createBlocks(t *testing.T, s store.RemoteStore, pageID models.PageID, texts ...string) []*models.Block {
	t.Helper()
	existing, err := s.ListBlocks(context.Background(), pageID)
	require.NoError(t, err)
	var out []*models.Block
	for i, text := range texts {
		b := models.NewBlock(models.BlockTypeParagraph, len(existing)+i)
		b.PageID = pageID
		b.Text = text
		created, err := s.CreateBlock(context.Background(), b)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func texts(blocks []*models.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

func testWorkspaces(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()

	created, err := s.CreateWorkspace(ctx, &models.Workspace{
		Name:    "Personal",
		OwnerID: models.NewUserID(),
		Members: []string{"demo"},
	})
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetWorkspace(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Personal", got.Name)
	assert.Equal(t, []string{"demo"}, got.Members)

	time.Sleep(tick)
	name := "Work"
	updated, err := s.UpdateWorkspace(ctx, created.ID, models.WorkspacePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Work", updated.Name)
	assert.Equal(t, []string{"demo"}, updated.Members)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	require.NoError(t, s.DeleteWorkspace(ctx, created.ID))
	got, err = s.GetWorkspace(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.UpdateWorkspace(ctx, created.ID, models.WorkspacePatch{Name: &name})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testPages(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	ws := models.NewWorkspaceID()

	page := models.NewPage("First", "🧪")
	page.WorkspaceID = ws
	page.Blocks = []*models.Block{models.NewBlock(models.BlockTypeParagraph, 0)}
	first, err := s.CreatePage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, page.ID, first.ID)
	assert.NotNil(t, first.Blocks)
	assert.Empty(t, first.Blocks)

	blocks, err := s.ListBlocks(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks, "page blocks are never stored with the page")

	time.Sleep(tick)
	second := createPage(t, s, ws, "Second")
	createPage(t, s, models.NewWorkspaceID(), "Elsewhere")

	pages, err := s.ListPages(ctx, ws)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, second.ID, pages[0].ID, "most recently updated first")

	time.Sleep(tick)
	title := "First, renamed"
	updated, err := s.UpdatePage(ctx, first.ID, models.PagePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, "🧪", updated.Icon)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt))

	pages, err = s.ListPages(ctx, ws)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, first.ID, pages[0].ID)

	missing, err := s.GetPage(ctx, models.NewPageID())
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.UpdatePage(ctx, models.NewPageID(), models.PagePatch{Title: &title})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testDeletePage(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Doomed")
	createBlocks(t, s, page.ID, "a", "b")

	require.NoError(t, s.DeletePage(ctx, page.ID))

	got, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	blocks, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func testDeletePageCascade(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Doomed")
	other := createPage(t, s, models.NewWorkspaceID(), "Survivor")
	createBlocks(t, s, page.ID, "a", "b")
	createBlocks(t, s, other.ID, "c")

	require.NoError(t, s.DeletePageCascade(ctx, page.ID))

	got, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	blocks, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	blocks, err = s.ListBlocks(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
}

func testBlocks(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Blocks")

	b := models.NewBlock(models.BlockTypeCheckbox, 0)
	b.PageID = page.ID
	b.Text = "buy milk"
	created, err := s.CreateBlock(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, b.ID, created.ID)
	assert.Equal(t, page.ID, created.PageID)

	later := models.NewBlock(models.BlockTypeParagraph, 5)
	later.PageID = page.ID
	_, err = s.CreateBlock(ctx, later)
	require.NoError(t, err)

	earlier := models.NewBlock(models.BlockTypeHeading1, -1)
	earlier.PageID = page.ID
	_, err = s.CreateBlock(ctx, earlier)
	require.NoError(t, err)

	blocks, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.BlockID{earlier.ID, b.ID, later.ID}, models.BlockIDs(blocks))

	time.Sleep(tick)
	checked := true
	updated, err := s.UpdateBlock(ctx, b.ID, models.BlockPatch{Checked: &checked})
	require.NoError(t, err)
	assert.True(t, updated.Checked)
	assert.Equal(t, "buy milk", updated.Text)
	assert.Equal(t, models.BlockTypeCheckbox, updated.Type)
	assert.Equal(t, 0, updated.Order)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	got, err := s.GetBlock(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Checked)

	require.NoError(t, s.DeleteBlock(ctx, b.ID))
	got, err = s.GetBlock(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.UpdateBlock(ctx, b.ID, models.BlockPatch{Checked: &checked})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testReorder(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Reorder")
	blocks := createBlocks(t, s, page.ID, "A", "B", "C")
	a, b, c := blocks[0], blocks[1], blocks[2]

	time.Sleep(tick)
	require.NoError(t, s.ReorderBlocks(ctx, page.ID, []models.BlockID{c.ID, a.ID, b.ID}))

	got, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, texts(got))
	for i, blk := range got {
		assert.Equal(t, i, blk.Order)
		assert.True(t, blk.UpdatedAt.After(a.UpdatedAt), "reorder stamps updatedAt")
	}
}

func testReorderAtomic(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Atomic")
	blocks := createBlocks(t, s, page.ID, "A", "B")

	err := s.ReorderBlocks(ctx, page.ID, []models.BlockID{blocks[1].ID, models.NewBlockID(), blocks[0].ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnknownBlocks), "got %v", err)

	got, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, texts(got))
	assert.Equal(t, 0, got[0].Order)
	assert.Equal(t, 1, got[1].Order)
}

// recorder collects subscription callbacks.
type recorder[T any] struct {
	mu   sync.Mutex
	seen []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, v)
}

func (r *recorder[T]) last() (T, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.seen) == 0 {
		return zero, 0
	}
	return r.seen[len(r.seen)-1], len(r.seen)
}

func testSubscribeBlocks(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Live")
	blocks := createBlocks(t, s, page.ID, "A", "B")

	rec := &recorder[[]*models.Block]{}
	sub, err := s.SubscribeBlocks(ctx, page.ID, rec.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond, "initial snapshot")

	createBlocks(t, s, page.ID, "C")
	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return assert.ObjectsAreEqual([]string{"A", "B", "C"}, texts(got))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.ReorderBlocks(ctx, page.ID, []models.BlockID{blocks[1].ID, blocks[0].ID}))
	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return assert.ObjectsAreEqual([]string{"B", "A", "C"}, texts(got))
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.DeleteBlock(ctx, blocks[0].ID))
	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond, "snapshot without the deleted block")

	require.NoError(t, sub.Cancel())
	time.Sleep(100 * time.Millisecond)
	_, before := rec.last()

	createBlocks(t, s, page.ID, "D")
	time.Sleep(200 * time.Millisecond)
	_, after := rec.last()
	assert.Equal(t, before, after, "no delivery after cancel")
}

func testSubscribePage(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	page := createPage(t, s, models.NewWorkspaceID(), "Before")

	rec := &recorder[*models.Page]{}
	sub, err := s.SubscribePage(ctx, page.ID, rec.add)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return got != nil && got.Title == "Before"
	}, 5*time.Second, 10*time.Millisecond)

	title := "After"
	_, err = s.UpdatePage(ctx, page.ID, models.PagePatch{Title: &title})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := rec.last()
		return got != nil && got.Title == "After"
	}, 5*time.Second, 10*time.Millisecond)
}

func testNormalized(t *testing.T, s store.RemoteStore) {
	ctx := context.Background()
	repo := store.NewNormalized(s)
	ws := models.NewWorkspaceID()

	page := models.NewPage("Saved", "")
	page.WorkspaceID = ws
	for i, text := range []string{"one", "two", "three"} {
		b := models.NewBlock(models.BlockTypeParagraph, i)
		b.PageID = page.ID
		b.Text = text
		page.Blocks = append(page.Blocks, b)
	}
	require.NoError(t, repo.SavePageWithBlocks(ctx, page))

	loaded, err := repo.LoadPage(ctx, page.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Saved", loaded.Title)
	assert.Equal(t, []string{"one", "two", "three"}, texts(loaded.Blocks))

	// Drop the first block, edit the second and move the new one to the front.
	page.Blocks = page.Blocks[1:]
	page.Blocks[0].Text = "two, edited"
	added := models.NewBlock(models.BlockTypeCheckbox, 0)
	added.Text = "new"
	page.Blocks = append([]*models.Block{added}, page.Blocks...)
	page.Title = "Saved again"
	require.NoError(t, repo.SavePageWithBlocks(ctx, page))

	loaded, err = repo.LoadPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Saved again", loaded.Title)
	assert.Equal(t, []string{"new", "two, edited", "three"}, texts(loaded.Blocks))

	pages, err := repo.ListPages(ctx, ws)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Blocks, 3)

	require.NoError(t, repo.DeleteCascade(ctx, page.ID))
	loaded, err = repo.LoadPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	blocks, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
