// Package reconcile keeps the session store, the local snapshot and the
// remote store in step.
//
// Every edit is applied to the session first and returns immediately. The
// session change triggers a snapshot save, and the matching remote write is
// queued to run in the background. Remote writes run one at a time in the
// order they were issued; their failures are logged and published to
// OnSyncError listeners, and never retried.
//
// Remote subscription callbacks replace the matching part of the session
// wholesale. A stale snapshot may therefore briefly undo an optimistic edit
// until that edit's own write lands and a newer snapshot arrives.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/session"
	"github.com/worklin/worklin/pkg/store"
	"github.com/worklin/worklin/pkg/store/local"
)

// ConflictPolicy names how concurrent writes to the same field resolve.
type ConflictPolicy int

const (
	// LastWriteWins lets whichever write the remote store applies last stand.
	// Writes carry no version and are never rejected.
	LastWriteWins ConflictPolicy = iota
)

func (p ConflictPolicy) String() string {
	switch p {
	case LastWriteWins:
		return "last-write-wins"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

var (
	// ErrPageNotLoaded is returned for edits to a page the session does not hold.
	ErrPageNotLoaded = errors.New("page not loaded")
	// ErrBlockNotLoaded is returned for edits to a block the page does not hold.
	ErrBlockNotLoaded = errors.New("block not loaded")
)

// DefaultWorkspaceName is used when the remote workspace has to be created.
const DefaultWorkspaceName = "My Workspace"

type Config struct {
	Session *session.Store
	Local   *local.Adapter
	// Remote is nil in local-only mode.
	Remote store.RemoteStore
	// Repository defaults to store.Normalized over Remote, or to the snapshot
	// repository in local-only mode.
	Repository  store.Repository
	WorkspaceID models.WorkspaceID
	Logger      zerolog.Logger
	// Now defaults to time.Now and stamps sync errors.
	Now func() time.Time
	// ReadOnly, when set and true, stops snapshot saves.
	ReadOnly func() bool
}

type Engine struct {
	session *session.Store
	local   *local.Adapter
	remote  store.RemoteStore
	repo    store.Repository
	log     zerolog.Logger
	now     func() time.Time
	frozen  func() bool

	ctx    context.Context
	cancel context.CancelFunc

	writes   writeQueue
	failures listeners[SyncError]

	mu          sync.Mutex
	workspaceID models.WorkspaceID
	workspace   store.Subscription
	page        []store.Subscription
	pageID      models.PageID
	unobserve   func()
	closed      bool
}

func New(cfg Config) *Engine {
	e := &Engine{
		session:     cfg.Session,
		local:       cfg.Local,
		remote:      cfg.Remote,
		repo:        cfg.Repository,
		log:         cfg.Logger,
		now:         cfg.Now,
		frozen:      cfg.ReadOnly,
		workspaceID: cfg.WorkspaceID,
	}
	if e.session == nil {
		e.session = session.New()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.frozen == nil {
		e.frozen = func() bool { return false }
	}
	if e.repo == nil {
		if e.remote != nil {
			e.repo = store.NewNormalized(e.remote)
		} else {
			e.repo = local.NewRepository(e.local)
		}
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.unobserve = e.session.Subscribe(e.autosave)
	return e
}

// Policy reports the conflict policy in force.
func (e *Engine) Policy() ConflictPolicy { return LastWriteWins }

// Session returns the store edits are applied to.
func (e *Engine) Session() *session.Store { return e.session }

// Remote returns the remote store, or nil in local-only mode.
func (e *Engine) Remote() store.RemoteStore { return e.remote }

func (e *Engine) Repository() store.Repository { return e.repo }

func (e *Engine) WorkspaceID() models.WorkspaceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workspaceID
}

// autosave writes the snapshot after every page or block change, including
// the change that removes the last page. Nothing is saved while read-only.
func (e *Engine) autosave(st session.State, change session.Change) {
	if !change.Has(session.ChangedPages) || e.local == nil || e.frozen() {
		return
	}
	e.local.Save(e.ctx, &models.Workspace{Pages: st.Pages})
}

// Open loads the workspace into the session and selects its first page. It
// must be called once, before any edit.
//
// With a remote store the workspace is read (or created) remotely; an empty
// remote workspace is seeded from the local snapshot. When the remote store
// cannot be reached, the error is reported and the engine continues in
// local-only mode.
func (e *Engine) Open(ctx context.Context) error {
	e.session.SetLoading(true)
	defer e.session.SetLoading(false)

	pages, ws := e.load(ctx)
	e.session.SetWorkspace(ws)
	e.session.SetPages(pages)

	if len(pages) == 0 {
		e.session.SetCurrentPageID(models.PageID{})
		return nil
	}
	return e.SelectPage(ctx, pages[0].ID)
}

func (e *Engine) load(ctx context.Context) ([]*models.Page, *models.Workspace) {
	if e.remote == nil {
		ws := e.local.Load(ctx)
		return ws.Pages, ws
	}

	ws, pages, err := e.loadRemote(ctx)
	if err != nil {
		// Following remote subscriptions now would replace the local pages
		// with whatever the unreachable store holds, so stay local.
		e.report("Open", "", err)
		e.log.Warn().Msg("remote store unavailable, continuing with the local snapshot only")
		e.remote = nil
		e.repo = local.NewRepository(e.local)
		ws := e.local.Load(ctx)
		return ws.Pages, ws
	}
	return pages, ws
}

func (e *Engine) loadRemote(ctx context.Context) (*models.Workspace, []*models.Page, error) {
	id := e.WorkspaceID()
	ws, err := e.remote.GetWorkspace(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ws == nil {
		ws, err = e.remote.CreateWorkspace(ctx, &models.Workspace{
			ID:      id,
			Name:    DefaultWorkspaceName,
			Members: []string{},
		})
		if err != nil {
			return nil, nil, err
		}
		e.log.Info().Str("workspace", ws.ID.String()).Msg("created remote workspace")
	}

	e.mu.Lock()
	e.workspaceID = ws.ID
	e.mu.Unlock()

	pages, err := e.repo.ListPages(ctx, ws.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(pages) == 0 {
		seed := e.local.Load(ctx)
		for _, p := range seed.Pages {
			p.WorkspaceID = ws.ID
			if err := e.repo.SavePageWithBlocks(ctx, p); err != nil {
				return nil, nil, fmt.Errorf("failed to seed page %s: %w", p.ID, err)
			}
		}
		e.log.Info().Int("pages", len(seed.Pages)).Msg("seeded remote workspace from local snapshot")
		pages = seed.Pages
	}

	sub, err := e.remote.SubscribeWorkspace(ctx, ws.ID, func(w *models.Workspace) {
		e.session.SetWorkspace(w)
	})
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	old := e.workspace
	e.workspace = sub
	e.mu.Unlock()
	e.cancelSubs(old)

	return ws, pages, nil
}

// SelectPage makes id the current page and, with a remote store, moves the
// live subscriptions to it.
func (e *Engine) SelectPage(ctx context.Context, id models.PageID) error {
	e.session.SetCurrentPageID(id)
	return e.follow(ctx, id)
}

// follow replaces the page subscriptions with ones for id. A zero id only
// drops the current ones.
func (e *Engine) follow(ctx context.Context, id models.PageID) error {
	e.mu.Lock()
	if e.pageID == id && (id.IsZero() || len(e.page) > 0) {
		e.mu.Unlock()
		return nil
	}
	old := e.page
	e.page, e.pageID = nil, id
	e.mu.Unlock()
	e.cancelSubs(old...)

	if e.remote == nil || id.IsZero() {
		return nil
	}

	blocks, err := e.remote.SubscribeBlocks(ctx, id, func(blocks []*models.Block) {
		e.session.SetBlocks(id, blocks)
	})
	if err != nil {
		e.report("SubscribeBlocks", id.String(), err)
		return err
	}
	page, err := e.remote.SubscribePage(ctx, id, func(p *models.Page) {
		e.session.ReplacePage(p)
	})
	if err != nil {
		e.cancelSubs(blocks)
		e.report("SubscribePage", id.String(), err)
		return err
	}

	e.mu.Lock()
	if e.pageID != id || e.closed {
		// another page was selected meanwhile
		e.mu.Unlock()
		e.cancelSubs(blocks, page)
		return nil
	}
	e.page = []store.Subscription{blocks, page}
	e.mu.Unlock()
	return nil
}

func (e *Engine) cancelSubs(subs ...store.Subscription) {
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Cancel(); err != nil {
			e.log.Warn().Err(err).Msg("failed to cancel subscription")
		}
	}
}

// Wait blocks until every queued remote write has finished.
func (e *Engine) Wait() {
	e.writes.wait()
}

// Close drops the subscriptions and observers and waits for queued writes.
// The remote store itself is left open.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := append(e.page, e.workspace)
	e.page, e.workspace = nil, nil
	e.mu.Unlock()

	e.cancelSubs(subs...)
	e.writes.wait()
	e.unobserve()
	e.cancel()
	return nil
}
