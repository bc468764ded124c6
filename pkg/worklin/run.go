package worklin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Handler returns the HTTP surface of the session.
//
// Health and login:
//
//	GET  /health, /api/health                     - Service health status
//	GET  /login                                   - Demo login form
//	POST /login                                   - Demo login form submit
//	POST /api/auth/login                          - Sign in as the demo user
//	POST /api/auth/logout                         - Sign out
//
// Everything below requires a login:
//
//	GET    /api/auth/me                           - Signed-in user
//	GET    /api/state                             - Whole session state
//	GET    /api/workspace                         - Open workspace
//	GET    /api/pages                             - Pages with their blocks
//	POST   /api/pages                             - Create and select a page
//	GET    /api/pages/{pageId}                    - One page
//	PUT    /api/pages/{pageId}                    - Rename or change the icon
//	DELETE /api/pages/{pageId}                    - Delete a page and its blocks
//	PUT    /api/pages/{pageId}/select             - Make the page current
//	GET    /api/pages/{pageId}/blocks             - Ordered blocks
//	POST   /api/pages/{pageId}/blocks             - Append a block
//	PUT    /api/pages/{pageId}/blocks/reorder     - Set the block order
//	POST   /api/pages/{pageId}/blocks/move        - Drop one block onto another
//	PATCH  /api/pages/{pageId}/blocks/{blockId}   - Change type, text or checked
//	DELETE /api/pages/{pageId}/blocks/{blockId}   - Delete a block
//	POST   /api/pages/{pageId}/blocks/{blockId}/toggle - Flip a checkbox
//	PUT    /api/ui/sidebar                        - Open, close or toggle the sidebar
//	GET    /api/block-types                       - Block types and labels
//	GET    /api/events                            - Websocket of state and sync errors
//	GET    /api/admin/read-only                   - Read-only switch
//	PUT    /api/admin/read-only                   - Flip the read-only switch
//
// Writes are answered with 403 while the app is read-only.
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/login", a.handleLoginForm).Methods(http.MethodGet)
	router.HandleFunc("/login", a.handleLoginSubmit).Methods(http.MethodPost)
	router.Handle("/", a.RequireLogin(http.HandlerFunc(a.handleIndex))).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(a.RequireLogin)

	protected.HandleFunc("/auth/me", a.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/state", a.handleState).Methods(http.MethodGet)
	protected.HandleFunc("/workspace", a.handleWorkspace).Methods(http.MethodGet)
	protected.HandleFunc("/block-types", a.handleBlockTypes).Methods(http.MethodGet)
	protected.HandleFunc("/ui/sidebar", a.handleSidebar).Methods(http.MethodPut)
	protected.HandleFunc("/events", a.handleEvents).Methods(http.MethodGet)
	protected.HandleFunc("/admin/read-only", a.handleGetReadOnly).Methods(http.MethodGet)
	protected.HandleFunc("/admin/read-only", a.handleSetReadOnly).Methods(http.MethodPut)

	// Page routes
	protected.HandleFunc("/pages", a.handleListPages).Methods(http.MethodGet)
	protected.HandleFunc("/pages", a.writable(a.handleCreatePage)).Methods(http.MethodPost)
	protected.HandleFunc("/pages/{pageId}", a.handleGetPage).Methods(http.MethodGet)
	protected.HandleFunc("/pages/{pageId}", a.writable(a.handleUpdatePage)).Methods(http.MethodPut)
	protected.HandleFunc("/pages/{pageId}", a.writable(a.handleDeletePage)).Methods(http.MethodDelete)
	protected.HandleFunc("/pages/{pageId}/select", a.handleSelectPage).Methods(http.MethodPut)

	// Block routes; the fixed segments go before {blockId}
	protected.HandleFunc("/pages/{pageId}/blocks", a.handleListBlocks).Methods(http.MethodGet)
	protected.HandleFunc("/pages/{pageId}/blocks", a.writable(a.handleAddBlock)).Methods(http.MethodPost)
	protected.HandleFunc("/pages/{pageId}/blocks/reorder", a.writable(a.handleReorderBlocks)).Methods(http.MethodPut)
	protected.HandleFunc("/pages/{pageId}/blocks/move", a.writable(a.handleMoveBlock)).Methods(http.MethodPost)
	protected.HandleFunc("/pages/{pageId}/blocks/{blockId}", a.writable(a.handleUpdateBlock)).Methods(http.MethodPatch)
	protected.HandleFunc("/pages/{pageId}/blocks/{blockId}", a.writable(a.handleDeleteBlock)).Methods(http.MethodDelete)
	protected.HandleFunc("/pages/{pageId}/blocks/{blockId}/toggle", a.writable(a.handleToggleCheckbox)).Methods(http.MethodPost)

	return router
}

// Run loads the workspace and serves [App.Handler] on Config.Addr until ctx
// is cancelled. Shutdown waits up to 5 seconds for active requests.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	if err := a.Open(ctx); err != nil {
		// the session is loaded; only following the first page failed
		a.log.Warn().Err(err).Msg("failed to subscribe to the first page")
	}

	server := &http.Server{
		Addr:              a.config.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// hijacked websocket connections are not closed by Shutdown
	server.RegisterOnShutdown(a.stopStreams)

	a.log.Info().
		Str("addr", a.config.Addr).
		Str("remote", a.remoteName()).
		Bool("readOnly", a.IsReadOnly()).
		Msg("starting Worklin server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (a *App) remoteName() string {
	if a.engine.Remote() == nil {
		return RemoteNone
	}
	return a.config.Remote
}
