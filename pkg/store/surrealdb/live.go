package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
)

func (s *Store) SubscribeWorkspace(ctx context.Context, id models.WorkspaceID, fn func(*models.Workspace)) (store.Subscription, error) {
	return s.live(ctx, "LIVE SELECT * FROM workspaces WHERE id = $id", map[string]any{"id": id.RecordID()}, func(ctx context.Context) error {
		w, err := s.GetWorkspace(ctx, id)
		if err == nil && w != nil {
			fn(w)
		}
		return err
	})
}

func (s *Store) SubscribePage(ctx context.Context, id models.PageID, fn func(*models.Page)) (store.Subscription, error) {
	return s.live(ctx, "LIVE SELECT * FROM pages WHERE id = $id", map[string]any{"id": id.RecordID()}, func(ctx context.Context) error {
		p, err := s.GetPage(ctx, id)
		if err == nil && p != nil {
			fn(p)
		}
		return err
	})
}

func (s *Store) SubscribeBlocks(ctx context.Context, pageID models.PageID, fn func([]*models.Block)) (store.Subscription, error) {
	return s.live(ctx, "LIVE SELECT * FROM blocks WHERE pageId = $page", map[string]any{"page": pageID}, func(ctx context.Context) error {
		blocks, err := s.ListBlocks(ctx, pageID)
		if err == nil {
			fn(blocks)
		}
		return err
	})
}

// live starts a live query and runs refresh once right away and again after
// each batch of notifications. Notifications that queue up while a refresh
// runs are folded into the next one.
func (s *Store) live(ctx context.Context, query string, vars map[string]any, refresh func(context.Context) error) (store.Subscription, error) {
	result, err := surrealdb.Query[surrealdb_models.UUID](ctx, s.db, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to start live query: %w", err)
	}
	if result == nil || len(*result) == 0 {
		return nil, fmt.Errorf("failed to start live query: no query id returned")
	}
	liveID := (*result)[0].Result.String()

	notifications, err := s.db.LiveNotifications(liveID)
	if err != nil {
		_ = surrealdb.Kill(ctx, s.db, liveID)
		return nil, fmt.Errorf("failed to receive live notifications: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	log := s.log.With().Str("live", liveID).Logger()

	go func() {
		run := func() {
			if err := refresh(subCtx); err != nil && subCtx.Err() == nil {
				log.Warn().Err(err).Msg("live query refresh failed")
			}
		}
		run()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-notifications:
				if !ok {
					return
				}
			drain:
				for {
					select {
					case _, ok := <-notifications:
						if !ok {
							break drain
						}
					default:
						break drain
					}
				}
				if subCtx.Err() != nil {
					return
				}
				run()
			}
		}
	}()

	var once sync.Once
	return store.SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			cancel()
			killCtx := context.WithoutCancel(ctx)
			err = errors.Join(
				surrealdb.Kill(killCtx, s.db, liveID),
				s.db.CloseLiveNotifications(liveID),
			)
			log.Debug().Msg("live query stopped")
		})
		return err
	}), nil
}
