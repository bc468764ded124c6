// Package session holds the in-memory state of one editing session: the
// pages of the open workspace, the selected page, the signed-in user and the
// UI flags.
//
// A Store is created per session and dropped with it; there is no package
// level state. All mutation goes through the setters. Each setter applies its
// change and notifies every observer, in registration order, before it
// returns.
package session

import (
	"sync"
	"time"

	"github.com/worklin/worklin/pkg/models"
)

// Change tells observers which part of the state a setter touched.
type Change uint8

const (
	// ChangedPages is set when pages or blocks changed.
	ChangedPages Change = 1 << iota
	// ChangedSelection is set when the current page changed.
	ChangedSelection
	// ChangedSession is set for workspace, user and UI flag changes.
	ChangedSession
)

func (c Change) Has(flag Change) bool { return c&flag != 0 }

// State is a snapshot of the session. Observers receive deep copies, so a
// State can be kept and read without locking.
type State struct {
	Pages         []*models.Page    `json:"pages"`
	CurrentPageID models.PageID     `json:"currentPageId"`
	Workspace     *models.Workspace `json:"workspace"`
	User          *models.User      `json:"user"`
	SidebarOpen   bool              `json:"sidebarOpen"`
	Loading       bool              `json:"loading"`
}

// CurrentPage looks up CurrentPageID in Pages. It returns nil when nothing is
// selected or the selected page is not loaded.
func (s State) CurrentPage() *models.Page {
	if s.CurrentPageID.IsZero() {
		return nil
	}
	for _, p := range s.Pages {
		if p.ID == s.CurrentPageID {
			return p
		}
	}
	return nil
}

func (s State) clone() State {
	c := s
	c.Pages = models.ClonePages(s.Pages)
	c.Workspace = s.Workspace.Clone()
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return c
}

// Observer is called after every state change.
type Observer func(state State, change Change)

type subscriber struct {
	id int
	fn Observer
}

type Store struct {
	// dispatch serializes mutate-and-notify so observers see changes in the
	// order they were applied. Observers must not call setters synchronously.
	dispatch sync.Mutex

	mu        sync.RWMutex
	state     State
	observers []subscriber
	nextID    int
	now       func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		state: State{Pages: []*models.Page{}, SidebarOpen: true},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Page returns a copy of the page, or nil.
func (s *Store) Page(id models.PageID) *models.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.page(id); p != nil {
		return p.Clone()
	}
	return nil
}

// Subscribe registers fn and returns a function that unregisters it.
// Cancelling twice is harmless.
func (s *Store) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// update runs fn under the state lock and notifies observers with the change
// it reports. A zero change skips notification.
func (s *Store) update(fn func(st *State) Change) Change {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.mu.Lock()
	change := fn(&s.state)
	if change == 0 {
		s.mu.Unlock()
		return 0
	}
	observers := append([]subscriber(nil), s.observers...)
	var snapshot State
	if len(observers) > 0 {
		snapshot = s.state.clone()
	}
	s.mu.Unlock()

	for i, sub := range observers {
		// each observer gets its own copy so one cannot disturb the next
		st := snapshot
		if i < len(observers)-1 {
			st = snapshot.clone()
		}
		sub.fn(st, change)
	}
	return change
}

func (s *Store) page(id models.PageID) *models.Page {
	for _, p := range s.state.Pages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// touch refreshes the page's updatedAt after a page or block mutation.
func (s *Store) touch(p *models.Page) time.Time {
	now := s.now()
	p.UpdatedAt = now
	return now
}
