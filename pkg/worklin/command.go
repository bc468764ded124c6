package worklin

// Command is one application operation together with its options.
//
// Commands are produced by [Parse] and dispatched by [Main] to the matching
// method on [App]:
//   - [RunCommand]: serve the HTTP API
//   - [MigrateCommand]: prepare the remote schema
//   - [SyncCommand]: copy pages between the local snapshot and the remote store
type Command interface {
	// Name returns the sub-command name the command was parsed from.
	Name() string
}

// MigrateCommand prepares the remote store: tables, indexes and change
// notification plumbing. Running it again is harmless.
//
//	worklin -remote postgres migrate
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

// RunCommand starts the HTTP server on Config.Addr and keeps it running until
// the context passed to [App.Run] is cancelled.
type RunCommand struct{}

func (c *RunCommand) Name() string {
	return "run"
}

// Sync directions.
const (
	// SyncPush copies the local snapshot into the remote store.
	SyncPush = "push"
	// SyncPull replaces the local snapshot with the remote workspace.
	SyncPull = "pull"
)

// SyncCommand copies every page with its blocks in one direction. The
// destination ends up holding the source's pages; pages only present at the
// destination are left alone when pushing and dropped when pulling.
//
//	worklin -remote surrealdb sync -sync-direction push
type SyncCommand struct {
	Direction string
}

func (c *SyncCommand) Name() string {
	return "sync"
}
