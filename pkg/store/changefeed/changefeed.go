// Package changefeed fans out entity change events to subscribers.
//
// Subscribers do not receive the events themselves. Each one runs a refresh
// function on its own goroutine whenever at least one matching change arrived
// since its last run, so a burst of writes collapses into a single refresh.
// This fits subscribers that re-read the full, current state on every
// notification.
package changefeed

import (
	"sync"
)

// Table names used in change events.
const (
	Workspaces = "workspaces"
	Pages      = "pages"
	Blocks     = "blocks"
)

// Change describes one written row.
type Change struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	// Parent is the owning page for blocks and the owning workspace for pages.
	Parent string `json:"parent,omitempty"`
}

// Feed routes published changes to matching subscribers.
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	match  func(Change) bool
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func New() *Feed {
	return &Feed{subs: make(map[int]*subscriber)}
}

// Subscribe registers refresh to run after every matching change. refresh
// also runs once right away, so the subscriber starts from current state.
// The returned cancel function is idempotent and may be called from inside
// refresh.
func (f *Feed) Subscribe(match func(Change) bool, refresh func()) (cancel func()) {
	s := &subscriber{
		match:  match,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	s.notify <- struct{}{}
	go s.run(refresh)

	return func() {
		s.once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(s.done)
		})
	}
}

// Publish signals every subscriber whose filter accepts c. It never blocks.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if s.match != nil && !s.match(c) {
			continue
		}
		select {
		case s.notify <- struct{}{}:
		default:
			// A refresh is already pending and will observe this change.
		}
	}
}

// Len reports the number of active subscribers.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (s *subscriber) run(refresh func()) {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			select {
			case <-s.done:
				return
			default:
			}
			refresh()
		}
	}
}

// ForRow matches changes to a single row.
func ForRow(table, id string) func(Change) bool {
	return func(c Change) bool {
		return c.Table == table && c.ID == id
	}
}

// ForChildren matches changes to rows of table owned by parent.
func ForChildren(table, parent string) func(Change) bool {
	return func(c Change) bool {
		return c.Table == table && c.Parent == parent
	}
}

// Broadcast signals every subscriber regardless of its filter. Publishers use
// it after they may have lost events, e.g. when a listener reconnects.
func (f *Feed) Broadcast() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}
