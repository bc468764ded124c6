package worklin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/worklin/worklin/pkg/client"
	"github.com/worklin/worklin/pkg/reconcile"
	"github.com/worklin/worklin/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// outbox collects what an event stream still has to send. Session and sync
// error callbacks only store into it, so they never wait on the network.
// State events are coalesced: only the newest state is kept, together with
// every kind of change that led to it.
type outbox struct {
	mu       sync.Mutex
	state    *session.State
	changes  session.Change
	failures []reconcile.SyncError
	ready    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) putState(st session.State, change session.Change) {
	o.mu.Lock()
	o.state = &st
	o.changes |= change
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) putFailure(err reconcile.SyncError) {
	o.mu.Lock()
	o.failures = append(o.failures, err)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// take empties the outbox. Sync errors come before the state they may have
// caused a rollback in.
func (o *outbox) take() []client.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	events := make([]client.Event, 0, len(o.failures)+1)
	for _, f := range o.failures {
		events = append(events, syncErrorEvent(f))
	}
	if o.state != nil {
		events = append(events, client.Event{
			Type:    client.EventState,
			Changes: changeNames(o.changes),
			State:   o.state,
		})
	}
	o.failures, o.state, o.changes = nil, nil, 0
	return events
}

func syncErrorEvent(f reconcile.SyncError) client.Event {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return client.Event{
		Type: client.EventSyncError,
		SyncError: &client.SyncErrorEvent{
			Op:      f.Op,
			ID:      f.ID,
			At:      f.At,
			Message: msg,
		},
	}
}

func changeNames(c session.Change) []string {
	var names []string
	if c.Has(session.ChangedPages) {
		names = append(names, "pages")
	}
	if c.Has(session.ChangedSelection) {
		names = append(names, "selection")
	}
	if c.Has(session.ChangedSession) {
		names = append(names, "session")
	}
	return names
}

// handleEvents upgrades to a websocket and streams the session: the current
// state first, then a state event after every change and a syncError event
// for every failed background write. Incoming messages are ignored.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		a.log.Warn().Err(err).Msg("failed to upgrade event stream")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(a.streams)
	defer cancel()
	log := a.log.With().Str("remoteAddr", r.RemoteAddr).Logger()

	box := newOutbox()
	unsubscribe := a.engine.Session().Subscribe(box.putState)
	defer unsubscribe()
	unlisten := a.engine.OnSyncError(box.putFailure)
	defer unlisten()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev client.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}

	st := a.engine.Session().State()
	if err := send(client.Event{Type: client.EventState, State: &st}); err != nil {
		return
	}
	log.Debug().Msg("event stream opened")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			log.Debug().Msg("event stream closed")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-box.ready:
			for _, ev := range box.take() {
				if err := send(ev); err != nil {
					log.Debug().Err(err).Msg("event stream write failed")
					return
				}
			}
		}
	}
}
