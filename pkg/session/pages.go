package session

import (
	"github.com/worklin/worklin/pkg/models"
)

// SetPages replaces every page. The selection is kept as an id; CurrentPage
// resolves to nil if the selected page is gone.
func (s *Store) SetPages(pages []*models.Page) {
	s.update(func(st *State) Change {
		st.Pages = models.ClonePages(pages)
		if st.Pages == nil {
			st.Pages = []*models.Page{}
		}
		return ChangedPages
	})
}

func (s *Store) AddPage(page *models.Page) {
	s.update(func(st *State) Change {
		p := page.Clone()
		if p.Blocks == nil {
			p.Blocks = []*models.Block{}
		}
		st.Pages = append(st.Pages, p)
		return ChangedPages
	})
}

// ReplacePage overwrites the page's own fields with a remote snapshot. The
// blocks held locally are kept, since remote pages never carry theirs.
func (s *Store) ReplacePage(page *models.Page) bool {
	return s.update(func(st *State) Change {
		for i, p := range st.Pages {
			if p.ID != page.ID {
				continue
			}
			next := page.Clone()
			next.Blocks = p.Blocks
			st.Pages[i] = next
			return ChangedPages
		}
		return 0
	}) != 0
}

func (s *Store) UpdatePage(pageID models.PageID, patch models.PagePatch) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		patch.Apply(p)
		s.touch(p)
		return ChangedPages
	}) != 0
}

// DeletePage removes the page. If it was selected, the selection moves to the
// first remaining page, or to none when no page is left.
func (s *Store) DeletePage(pageID models.PageID) bool {
	return s.update(func(st *State) Change {
		i := -1
		for j, p := range st.Pages {
			if p.ID == pageID {
				i = j
				break
			}
		}
		if i < 0 {
			return 0
		}
		st.Pages = append(st.Pages[:i:i], st.Pages[i+1:]...)

		change := ChangedPages
		if st.CurrentPageID == pageID {
			st.CurrentPageID = models.PageID{}
			if len(st.Pages) > 0 {
				st.CurrentPageID = st.Pages[0].ID
			}
			change |= ChangedSelection
		}
		return change
	}) != 0
}

// SetCurrentPageID selects a page. An id that is not loaded is accepted and
// leaves CurrentPage nil.
func (s *Store) SetCurrentPageID(id models.PageID) {
	s.update(func(st *State) Change {
		st.CurrentPageID = id
		return ChangedSelection
	})
}

func (s *Store) SetWorkspace(ws *models.Workspace) {
	s.update(func(st *State) Change {
		st.Workspace = ws.Clone()
		if st.Workspace != nil {
			st.Workspace.Pages = nil
		}
		return ChangedSession
	})
}

func (s *Store) SetUser(user *models.User) {
	s.update(func(st *State) Change {
		st.User = nil
		if user != nil {
			u := *user
			st.User = &u
		}
		return ChangedSession
	})
}

func (s *Store) SetSidebarOpen(open bool) {
	s.update(func(st *State) Change {
		st.SidebarOpen = open
		return ChangedSession
	})
}

func (s *Store) ToggleSidebar() {
	s.update(func(st *State) Change {
		st.SidebarOpen = !st.SidebarOpen
		return ChangedSession
	})
}

func (s *Store) SetLoading(loading bool) {
	s.update(func(st *State) Change {
		st.Loading = loading
		return ChangedSession
	})
}
