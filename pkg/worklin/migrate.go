package worklin

import (
	"context"
	"fmt"
)

// Migrate prepares the remote store's schema. It is safe to run repeatedly
// and is refused in read-only mode.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if a.store == nil {
		return ErrNoRemote
	}
	a.log.Info().Str("remote", a.config.Remote).Msg("running migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed successfully")
	return nil
}
