package worklin

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/worklin/worklin/pkg/blobstore"
	"github.com/worklin/worklin/pkg/logger"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/reconcile"
	"github.com/worklin/worklin/pkg/store"
	"github.com/worklin/worklin/pkg/store/local"
	"github.com/worklin/worklin/pkg/store/memory"
	"github.com/worklin/worklin/pkg/store/postgres"
	"github.com/worklin/worklin/pkg/store/surrealdb"
)

// Remote store kinds accepted in Config.Remote.
const (
	// RemoteNone keeps the workspace in the local snapshot only.
	RemoteNone      = "none"
	RemoteMemory    = "memory"
	RemoteSurrealDB = "surrealdb"
	RemotePostgres  = "postgres"
)

// DefaultWorkspaceID is the workspace every session opens unless another one
// is configured.
const DefaultWorkspaceID = "6f1c9a4e-2b7d-4c3e-9a58-0d4e7b21c6f3"

type LogConfig struct {
	// Level is a zerolog level name; "disabled" silences the logger.
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// File appends log lines to this path instead of stdout.
	File string `yaml:"file"`
}

type Config struct {
	Addr string `yaml:"addr"`

	// Remote selects the remote store. Empty means RemoteNone.
	Remote      string `yaml:"remote"`
	WorkspaceID string `yaml:"workspaceId"`

	Snapshot    blobstore.Config `yaml:"snapshot"`
	SnapshotKey string           `yaml:"snapshotKey"`

	SurrealDB   surrealdb.Config `yaml:"surrealdb"`
	PostgresDSN string           `yaml:"postgresDsn"`

	// ReadOnly rejects every write: edits, remote writes and snapshot saves.
	ReadOnly bool `yaml:"readOnly"`

	// SessionSecret signs the login cookie. A random secret is generated
	// when empty, which signs everyone out on restart.
	SessionSecret string `yaml:"sessionSecret"`

	// SecureCookie marks the login cookie Secure. Enable it only behind
	// HTTPS; browsers and cookie jars drop Secure cookies on plain HTTP.
	SecureCookie bool `yaml:"secureCookie"`

	Log LogConfig `yaml:"log"`
}

// App wires the stores, the reconciliation engine and the HTTP surface of one
// editing session.
type App struct {
	config  *Config
	log     zerolog.Logger
	logData *logger.LogData

	blobs  blobstore.Store
	local  *local.Adapter
	remote store.RemoteStore
	// store wraps remote with the read-only switch; nil in local-only mode.
	store  *store.ReadOnlyStore
	engine *reconcile.Engine

	cookies  *sessions.CookieStore
	upgrader websocket.Upgrader

	// streams is cancelled on shutdown to end the event websockets.
	streams     context.Context
	stopStreams context.CancelFunc

	readOnly atomic.Bool
	openOnce sync.Once
	openErr  error
}

// New builds the application from config. Nothing is loaded until
// [App.Open] runs; the run command does that before serving.
func New(ctx context.Context, config *Config) (_ *App, err error) {
	app := &App{config: config}
	app.readOnly.Store(config.ReadOnly)
	app.streams, app.stopStreams = context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	level, err := logger.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, err
	}
	build := logger.New().WithLevel(level).Pretty(config.Log.Pretty)
	if config.Log.File != "" {
		build = build.FromPath(config.Log.File)
	}
	if app.logData, err = build.Make(); err != nil {
		return nil, err
	}
	app.log = app.logData.Logger

	if config.WorkspaceID == "" {
		config.WorkspaceID = DefaultWorkspaceID
	}
	workspaceID, err := models.ParseWorkspaceID(config.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if app.blobs, err = blobstore.Open(ctx, config.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	opts := []local.Option{local.WithLogger(app.component("local"))}
	if config.SnapshotKey != "" {
		opts = append(opts, local.WithKey(config.SnapshotKey))
	}
	app.local = local.New(app.blobs, opts...)

	if app.remote, err = app.openRemote(ctx); err != nil {
		return nil, err
	}

	engineConfig := reconcile.Config{
		Local:       app.local,
		WorkspaceID: workspaceID,
		Logger:      app.component("reconcile"),
		ReadOnly:    app.IsReadOnly,
	}
	if app.remote != nil {
		app.store = store.NewReadOnlyStore(app.remote, app.IsReadOnly)
		engineConfig.Remote = app.store
	}
	app.engine = reconcile.New(engineConfig)

	secret := []byte(config.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
	}
	app.cookies = sessions.NewCookieStore(secret)
	app.cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		Secure:   config.SecureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return app, nil
}

func (a *App) openRemote(ctx context.Context) (store.RemoteStore, error) {
	switch a.config.Remote {
	case RemoteNone, "":
		a.log.Info().Msg("running with the local snapshot only")
		return nil, nil
	case RemoteMemory:
		a.log.Info().Msg("using in-memory remote store")
		return memory.New(), nil
	case RemoteSurrealDB:
		s, err := surrealdb.New(ctx, a.config.SurrealDB, surrealdb.WithLogger(a.component("surrealdb")))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		a.log.Info().Str("url", a.config.SurrealDB.URL).Msg("connected to SurrealDB")
		return s, nil
	case RemotePostgres:
		s, err := postgres.New(ctx, a.config.PostgresDSN, postgres.WithLogger(a.component("postgres")))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.log.Info().Msg("connected to PostgreSQL")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown remote store: %q", a.config.Remote)
	}
}

func (a *App) component(name string) zerolog.Logger {
	return a.log.With().Str("component", name).Logger()
}

// Open loads the workspace into the session. Only the first call does any
// work; later calls return its result.
func (a *App) Open(ctx context.Context) error {
	a.openOnce.Do(func() {
		a.openErr = a.engine.Open(ctx)
	})
	return a.openErr
}

func (a *App) Close() error {
	a.stopStreams()
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.blobs != nil {
		errs = append(errs, a.blobs.Close())
	}
	if a.logData != nil {
		errs = append(errs, a.logData.Close())
	}
	return errors.Join(errs...)
}

func (a *App) Engine() *reconcile.Engine {
	return a.engine
}

// Remote returns the read-only guarded remote store, or nil in local-only
// mode.
func (a *App) Remote() store.RemoteStore {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *App) Local() *local.Adapter {
	return a.local
}

func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.log.Info().Bool("readOnly", readOnly).Msg("read-only mode changed")
}

func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
