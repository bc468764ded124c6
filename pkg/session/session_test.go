package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/session"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T) (*session.Store, *models.Page) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := session.New(session.WithClock(clock.Now))
	page := models.NewPage("Notes", "")
	page.UpdatedAt = clock.t
	s.SetPages([]*models.Page{page})
	s.SetCurrentPageID(page.ID)
	return s, page
}

func blocksOf(t *testing.T, s *session.Store, id models.PageID) []*models.Block {
	t.Helper()
	p := s.Page(id)
	require.NotNil(t, p)
	return p.Blocks
}

func TestAddBlockAppends(t *testing.T) {
	s, page := newStore(t)

	for i := 0; i < 5; i++ {
		before := len(blocksOf(t, s, page.ID))
		b := models.NewBlock(models.BlockTypeParagraph, 99)
		require.True(t, s.AddBlock(page.ID, b))

		blocks := blocksOf(t, s, page.ID)
		require.Len(t, blocks, before+1)
		last := blocks[len(blocks)-1]
		assert.Equal(t, b.ID, last.ID)
		assert.Equal(t, before, last.Order)
		assert.Equal(t, page.ID, last.PageID)
	}
}

func TestDeleteBlockKeepsRelativeOrder(t *testing.T) {
	for victim := 0; victim < 4; victim++ {
		s, page := newStore(t)
		for i := 0; i < 4; i++ {
			s.AddBlock(page.ID, models.NewBlock(models.BlockTypeParagraph, 0))
		}
		ids := models.BlockIDs(blocksOf(t, s, page.ID))

		require.True(t, s.DeleteBlock(page.ID, ids[victim]))

		want := append(append([]models.BlockID(nil), ids[:victim]...), ids[victim+1:]...)
		got := blocksOf(t, s, page.ID)
		assert.Equal(t, want, models.BlockIDs(got))
		for i, b := range got {
			assert.Equal(t, i, b.Order)
		}
	}
}

func TestDeleteUnknownBlockIsNoop(t *testing.T) {
	s, page := newStore(t)
	s.AddBlock(page.ID, models.NewBlock(models.BlockTypeParagraph, 0))

	calls := 0
	s.Subscribe(func(session.State, session.Change) { calls++ })

	assert.False(t, s.DeleteBlock(page.ID, models.NewBlockID()))
	assert.False(t, s.DeleteBlock(models.NewPageID(), models.NewBlockID()))
	assert.Zero(t, calls)
	assert.Len(t, blocksOf(t, s, page.ID), 1)
}

func TestSetBlocksReplacesWholesale(t *testing.T) {
	s, page := newStore(t)
	a := models.NewBlock(models.BlockTypeParagraph, 0)
	b := models.NewBlock(models.BlockTypeParagraph, 1)
	c := models.NewBlock(models.BlockTypeParagraph, 2)
	for _, blk := range []*models.Block{a, b, c} {
		s.AddBlock(page.ID, blk)
	}

	// A remote snapshot that no longer has b, with gaps in order.
	a2, c2 := a.Clone(), c.Clone()
	a2.Order, c2.Order = 5, 2
	require.True(t, s.SetBlocks(page.ID, []*models.Block{a2, c2}))

	got := blocksOf(t, s, page.ID)
	assert.Equal(t, []models.BlockID{c.ID, a.ID}, models.BlockIDs(got))
	assert.Equal(t, 0, got[0].Order)
	assert.Equal(t, 1, got[1].Order)
}

func TestUpdateBlockMergesFields(t *testing.T) {
	s, page := newStore(t)
	b := models.NewBlock(models.BlockTypeCheckbox, 0)
	b.Text = "buy milk"
	s.AddBlock(page.ID, b)
	before := blocksOf(t, s, page.ID)[0]
	pageBefore := s.Page(page.ID).UpdatedAt

	checked := true
	require.True(t, s.UpdateBlock(page.ID, b.ID, models.BlockPatch{Checked: &checked}))

	after := blocksOf(t, s, page.ID)[0]
	assert.True(t, after.Checked)
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Type, after.Type)
	assert.Equal(t, before.Order, after.Order)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, s.Page(page.ID).UpdatedAt.After(pageBefore), "page updatedAt must be refreshed")
}

func TestReorderBlocks(t *testing.T) {
	s, page := newStore(t)
	for i := 0; i < 3; i++ {
		s.AddBlock(page.ID, models.NewBlock(models.BlockTypeParagraph, 0))
	}
	ids := models.BlockIDs(blocksOf(t, s, page.ID))
	a, b, c := ids[0], ids[1], ids[2]

	require.True(t, s.ReorderBlocks(page.ID, []models.BlockID{c, a, b}))
	got := blocksOf(t, s, page.ID)
	assert.Equal(t, []models.BlockID{c, a, b}, models.BlockIDs(got))
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].Order, got[1].Order, got[2].Order})

	t.Run("partial list keeps the rest behind", func(t *testing.T) {
		s.ReorderBlocks(page.ID, []models.BlockID{b, models.NewBlockID()})
		assert.Equal(t, []models.BlockID{b, c, a}, models.BlockIDs(blocksOf(t, s, page.ID)))
	})
}

func TestMoveBefore(t *testing.T) {
	a, b, c := models.NewBlockID(), models.NewBlockID(), models.NewBlockID()
	ids := []models.BlockID{a, b, c}

	tests := []struct {
		name           string
		source, target models.BlockID
		want           []models.BlockID
	}{
		{"last onto first", c, a, []models.BlockID{c, a, b}},
		{"first onto last", a, c, []models.BlockID{b, c, a}},
		{"adjacent down", a, b, []models.BlockID{b, a, c}},
		{"adjacent up", b, a, []models.BlockID{b, a, c}},
		{"same block", b, b, ids},
		{"unknown source", models.NewBlockID(), a, ids},
		{"unknown target", a, models.NewBlockID(), ids},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.MoveBefore(ids, tt.source, tt.target))
		})
	}
	assert.Equal(t, []models.BlockID{a, b, c}, ids, "input must not be modified")
}

func TestDeleteCurrentPageMovesSelection(t *testing.T) {
	s := session.New()
	p1, p2 := models.NewPage("one", ""), models.NewPage("two", "")
	s.SetPages([]*models.Page{p1, p2})
	s.SetCurrentPageID(p2.ID)

	var last session.Change
	s.Subscribe(func(_ session.State, c session.Change) { last = c })

	require.True(t, s.DeletePage(p2.ID))
	st := s.State()
	assert.Equal(t, p1.ID, st.CurrentPageID)
	require.NotNil(t, st.CurrentPage())
	assert.Equal(t, "one", st.CurrentPage().Title)
	assert.True(t, last.Has(session.ChangedSelection))

	require.True(t, s.DeletePage(p1.ID))
	st = s.State()
	assert.True(t, st.CurrentPageID.IsZero())
	assert.Nil(t, st.CurrentPage())
	assert.Empty(t, st.Pages)
}

func TestDeleteOtherPageKeepsSelection(t *testing.T) {
	s := session.New()
	p1, p2 := models.NewPage("one", ""), models.NewPage("two", "")
	s.SetPages([]*models.Page{p1, p2})
	s.SetCurrentPageID(p2.ID)

	var last session.Change
	s.Subscribe(func(_ session.State, c session.Change) { last = c })
	s.DeletePage(p1.ID)

	assert.Equal(t, p2.ID, s.State().CurrentPageID)
	assert.False(t, last.Has(session.ChangedSelection))
}

func TestSetCurrentPageIDUnknown(t *testing.T) {
	s, _ := newStore(t)
	s.SetCurrentPageID(models.NewPageID())
	assert.Nil(t, s.State().CurrentPage())
}

func TestReplacePageKeepsBlocks(t *testing.T) {
	s, page := newStore(t)
	s.AddBlock(page.ID, models.NewBlock(models.BlockTypeHeading1, 0))

	remote := page.Clone()
	remote.Title = "Renamed elsewhere"
	remote.Blocks = []*models.Block{}
	require.True(t, s.ReplacePage(remote))

	got := s.Page(page.ID)
	assert.Equal(t, "Renamed elsewhere", got.Title)
	assert.Len(t, got.Blocks, 1)

	assert.False(t, s.ReplacePage(models.NewPage("stranger", "")))
}

func TestUpdatePage(t *testing.T) {
	s, page := newStore(t)
	before := s.Page(page.ID).UpdatedAt

	title := "Renamed"
	require.True(t, s.UpdatePage(page.ID, models.PagePatch{Title: &title}))
	got := s.Page(page.ID)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.DefaultPageIcon, got.Icon)
	assert.True(t, got.UpdatedAt.After(before))
}

func TestObservers(t *testing.T) {
	s, page := newStore(t)

	var order []string
	var seen session.State
	cancelFirst := s.Subscribe(func(st session.State, c session.Change) {
		order = append(order, "first")
		seen = st
	})
	s.Subscribe(func(st session.State, c session.Change) {
		order = append(order, "second")
		// mutating a snapshot must not leak into the store or other observers
		st.Pages[0].Title = "scribbled"
	})

	s.AddBlock(page.ID, models.NewBlock(models.BlockTypeParagraph, 0))
	assert.Equal(t, []string{"first", "second"}, order)
	require.Len(t, seen.Pages, 1)
	assert.Equal(t, "Notes", seen.Pages[0].Title)
	assert.Equal(t, "Notes", s.Page(page.ID).Title)

	cancelFirst()
	cancelFirst()
	s.ToggleSidebar()
	assert.Equal(t, []string{"first", "second", "second"}, order)
}

func TestSessionFlags(t *testing.T) {
	s := session.New()
	assert.True(t, s.State().SidebarOpen)

	var changes []session.Change
	s.Subscribe(func(_ session.State, c session.Change) { changes = append(changes, c) })

	s.ToggleSidebar()
	assert.False(t, s.State().SidebarOpen)
	s.SetSidebarOpen(true)
	s.SetLoading(true)
	s.SetUser(&models.User{ID: models.NewUserID(), Name: "demo"})
	s.SetWorkspace(&models.Workspace{ID: models.NewWorkspaceID(), Name: "Home"})

	st := s.State()
	assert.True(t, st.SidebarOpen)
	assert.True(t, st.Loading)
	assert.Equal(t, "demo", st.User.Name)
	assert.Equal(t, "Home", st.Workspace.Name)
	for _, c := range changes {
		assert.Equal(t, session.ChangedSession, c)
	}
	assert.Len(t, changes, 5)
}
