package worklin

import (
	"context"
	"errors"
	"fmt"

	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/reconcile"
	"github.com/worklin/worklin/pkg/store"
	"github.com/worklin/worklin/pkg/store/local"
)

// ErrNoRemote is returned by commands that need a remote store when the app
// runs with the local snapshot only.
var ErrNoRemote = errors.New("no remote store configured")

// Sync copies every page with its blocks between the local snapshot and the
// remote workspace, through the two [store.Repository] implementations.
//
// Pushing upserts the snapshot's pages remotely and creates the remote
// workspace when needed. Pulling makes the snapshot equal to the remote
// workspace, dropping pages that only exist locally. Sync refuses to run in
// read-only mode. It returns the number of pages copied.
func (a *App) Sync(ctx context.Context, cmd *SyncCommand) (int, error) {
	if a.store == nil {
		return 0, ErrNoRemote
	}
	if a.IsReadOnly() {
		return 0, fmt.Errorf("sync cannot run in read-only mode: %w", store.ErrReadOnly)
	}

	workspaceID := a.engine.WorkspaceID()
	localRepo := local.NewRepository(a.local)
	remoteRepo := store.NewNormalized(a.store)

	var (
		n   int
		err error
	)
	switch cmd.Direction {
	case SyncPush:
		a.log.Info().Str("workspace", workspaceID.String()).Msg("pushing local snapshot to remote store")
		if err := a.ensureWorkspace(ctx, workspaceID); err != nil {
			return 0, err
		}
		n, err = copyPages(ctx, localRepo, remoteRepo, workspaceID, false)
	case SyncPull:
		a.log.Info().Str("workspace", workspaceID.String()).Msg("pulling remote workspace into local snapshot")
		n, err = copyPages(ctx, remoteRepo, localRepo, workspaceID, true)
	default:
		return 0, fmt.Errorf("invalid sync direction: %s (must be 'push' or 'pull')", cmd.Direction)
	}
	if err != nil {
		return n, fmt.Errorf("%s failed: %w", cmd.Direction, err)
	}
	a.log.Info().Int("pages", n).Str("direction", cmd.Direction).Msg("sync completed")
	return n, nil
}

func (a *App) ensureWorkspace(ctx context.Context, id models.WorkspaceID) error {
	ws, err := a.store.GetWorkspace(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read workspace: %w", err)
	}
	if ws != nil {
		return nil
	}
	_, err = a.store.CreateWorkspace(ctx, &models.Workspace{
		ID:      id,
		Name:    reconcile.DefaultWorkspaceName,
		Members: []string{},
	})
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// copyPages saves every page of from into to. With prune, pages of to that
// from does not have are deleted with their blocks.
func copyPages(ctx context.Context, from, to store.Repository, workspaceID models.WorkspaceID, prune bool) (int, error) {
	pages, err := from.ListPages(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pages: %w", err)
	}

	keep := make(map[models.PageID]bool, len(pages))
	for i, page := range pages {
		page.WorkspaceID = workspaceID
		if err := to.SavePageWithBlocks(ctx, page); err != nil {
			return i, fmt.Errorf("failed to save page %s: %w", page.ID, err)
		}
		keep[page.ID] = true
	}

	if prune {
		existing, err := to.ListPages(ctx, workspaceID)
		if err != nil {
			return len(pages), fmt.Errorf("failed to list pages: %w", err)
		}
		for _, page := range existing {
			if keep[page.ID] {
				continue
			}
			if err := to.DeleteCascade(ctx, page.ID); err != nil {
				return len(pages), fmt.Errorf("failed to delete page %s: %w", page.ID, err)
			}
		}
	}
	return len(pages), nil
}
