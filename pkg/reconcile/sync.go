package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// SyncError describes a background remote operation that failed. The local
// edit that caused it stays applied.
type SyncError struct {
	Op  string    `json:"op"`
	ID  string    `json:"id,omitempty"`
	At  time.Time `json:"at"`
	Err error     `json:"-"`
}

func (e SyncError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e SyncError) Unwrap() error { return e.Err }

// OnSyncError registers fn for background failures. fn runs on the write
// queue's goroutine and should return quickly.
func (e *Engine) OnSyncError(fn func(SyncError)) (cancel func()) {
	return e.failures.add(fn)
}

func (e *Engine) report(op, id string, err error) {
	serr := SyncError{Op: op, ID: id, At: e.now(), Err: err}
	e.log.Error().Err(err).Str("op", op).Str("id", id).Msg("sync failed")
	e.failures.emit(serr)
}

// enqueue schedules a remote write. It does not wait for it.
func (e *Engine) enqueue(op, id string, fn func(ctx context.Context) error) {
	e.writes.push(func() {
		if err := fn(e.ctx); err != nil {
			e.report(op, id, err)
			return
		}
		e.log.Debug().Str("op", op).Str("id", id).Msg("synced")
	})
}

// writeQueue runs jobs one after another in push order without blocking the
// caller. Each job waits for its predecessor before it starts.
type writeQueue struct {
	mu   sync.Mutex
	tail chan struct{}
	wg   sync.WaitGroup
}

func (q *writeQueue) push(job func()) {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		job()
	}()
}

func (q *writeQueue) wait() {
	q.wg.Wait()
}

type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
}

func (l *listeners[T]) add(fn func(T)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	fns := make([]func(T), 0, len(ids))
	// registration order
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
