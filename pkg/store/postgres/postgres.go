// Package postgres implements [github.com/worklin/worklin/pkg/store.RemoteStore]
// on PostgreSQL with GORM.
//
// Workspaces, pages and blocks map to the workspaces, pages and blocks
// tables through the GORM tags on the model types; [Store.Migrate] creates
// them with AutoMigrate. Reorder and cascade delete run in a single
// transaction each.
//
// Change notification is done in the database: Migrate installs a row
// trigger on every table that sends the table, row id and parent id on the
// worklin_changes channel with pg_notify. A dedicated pgx connection LISTENs
// on that channel and feeds a [github.com/worklin/worklin/pkg/store/changefeed.Feed];
// subscribers re-read the current rows whenever a matching change arrives.
// Writes made by any process connected to the same database are therefore
// seen by every subscriber.
//
// Timestamps come from the database clock (now()), never from the caller
// or the application host, so writers on different hosts are ordered by one
// clock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
	"github.com/worklin/worklin/pkg/store/changefeed"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Channel is the NOTIFY channel the change triggers publish on.
const Channel = "worklin_changes"

type Store struct {
	db   *gorm.DB
	dsn  string
	log  zerolog.Logger
	feed *changefeed.Feed

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ store.RemoteStore = (*Store)(nil)

type Option func(*Store)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens the database and starts the change listener.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		dsn:  dsn,
		log:  zerolog.Nop(),
		feed: changefeed.New(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db

	conn, err := s.connectListener(ctx)
	if err != nil {
		_ = s.closeDB()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(listenCtx, conn)

	s.log.Info().Msg("connected to PostgreSQL")
	return s, nil
}

// Migrate creates the tables and installs the change triggers.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.Workspace{}, &models.Page{}, &models.Block{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	statements := []string{notifyFunction}
	statements = append(statements, triggerStatements("workspaces", "")...)
	statements = append(statements, triggerStatements("pages", "workspace_id")...)
	statements = append(statements, triggerStatements("blocks", "page_id")...)
	return db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range statements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to install change triggers: %w", err)
			}
		}
		return nil
	})
}

// Close stops the listener and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.closeDB()
	})
	return err
}

func (s *Store) closeDB() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Workspace operations

func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error) {
	w := workspace.Clone()
	if w.ID.IsZero() {
		w.ID = models.NewWorkspaceID()
	}
	if w.Members == nil {
		w.Members = []string{}
	}
	w.Pages = nil
	now, err := s.serverNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	w.CreatedAt, w.UpdatedAt = now, now

	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return w, nil
}

func (s *Store) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	var workspace models.Workspace
	err := s.db.WithContext(ctx).First(&workspace, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &workspace, nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, id models.WorkspaceID, patch models.WorkspacePatch) (*models.Workspace, error) {
	fields := patch.Fields()
	if members, ok := fields["members"]; ok {
		// Updates with a map bypasses the json serializer
		data, err := json.Marshal(members)
		if err != nil {
			return nil, fmt.Errorf("failed to update workspace: %w", err)
		}
		fields["members"] = string(data)
	}
	if err := s.update(ctx, &models.Workspace{}, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return s.GetWorkspace(ctx, id)
}

func (s *Store) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if err := s.db.WithContext(ctx).Delete(&models.Workspace{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return nil
}

// serverNow reads the database clock.
func (s *Store) serverNow(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.WithContext(ctx).Raw("SELECT now()").Row().Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}

// update merges fields into one row and stamps updated_at with the database
// clock. A missing row is store.ErrNotFound.
func (s *Store) update(ctx context.Context, model any, id any, fields map[string]any) error {
	fields["updated_at"] = gorm.Expr("now()")
	result := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Page operations

func (s *Store) CreatePage(ctx context.Context, page *models.Page) (*models.Page, error) {
	p := page.Clone()
	if p.ID.IsZero() {
		p.ID = models.NewPageID()
	}
	p.Blocks = nil
	now, err := s.serverNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	p.Blocks = []*models.Block{}
	return p, nil
}

func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	var page models.Page
	err := s.db.WithContext(ctx).First(&page, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	page.Blocks = []*models.Block{}
	return &page, nil
}

func (s *Store) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("updated_at DESC").
		Find(&pages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	for _, p := range pages {
		p.Blocks = []*models.Block{}
	}
	return pages, nil
}

func (s *Store) UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error) {
	if err := s.update(ctx, &models.Page{}, id, patch.Fields()); err != nil {
		return nil, fmt.Errorf("failed to update page: %w", err)
	}
	return s.GetPage(ctx, id)
}

func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	if err := s.db.WithContext(ctx).Delete(&models.Page{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

func (s *Store) DeletePageCascade(ctx context.Context, id models.PageID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Block{}, "page_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Page{}, "id = ?", id).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete page cascade: %w", err)
	}
	return nil
}

// Block operations

func (s *Store) CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error) {
	if err := block.Type.Validate(); err != nil {
		return nil, err
	}
	b := block.Clone()
	if b.ID.IsZero() {
		b.ID = models.NewBlockID()
	}
	now, err := s.serverNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	b.CreatedAt, b.UpdatedAt = now, now

	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	return b, nil
}

func (s *Store) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	var block models.Block
	err := s.db.WithContext(ctx).First(&block, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return &block, nil
}

func (s *Store) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	blocks := []*models.Block{}
	err := s.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order(`"order" ASC, created_at ASC, id ASC`).
		Find(&blocks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

func (s *Store) UpdateBlock(ctx context.Context, id models.BlockID, patch models.BlockPatch) (*models.Block, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if err := s.update(ctx, &models.Block{}, id, patch.Fields()); err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	return s.GetBlock(ctx, id)
}

func (s *Store) DeleteBlock(ctx context.Context, id models.BlockID) error {
	if err := s.db.WithContext(ctx).Delete(&models.Block{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// ReorderBlocks checks that every id is a block of the page and rewrites the
// orders, all in one transaction.
func (s *Store) ReorderBlocks(ctx context.Context, pageID models.PageID, blockIDs []models.BlockID) error {
	distinct := make(map[models.BlockID]struct{}, len(blockIDs))
	for _, id := range blockIDs {
		distinct[id] = struct{}{}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(blockIDs) == 0 {
			return nil
		}
		var found int64
		if err := tx.Model(&models.Block{}).
			Where("page_id = ? AND id IN ?", pageID, blockIDs).
			Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(distinct) {
			return store.ErrUnknownBlocks
		}

		// now() is the transaction start, so the whole batch shares one stamp
		now := gorm.Expr("now()")
		for i, id := range blockIDs {
			if err := tx.Model(&models.Block{}).
				Where("id = ?", id).
				Updates(map[string]any{"order": i, "updated_at": now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reorder blocks: %w", err)
	}
	return nil
}

// Subscriptions

func (s *Store) SubscribeWorkspace(ctx context.Context, id models.WorkspaceID, fn func(*models.Workspace)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForRow(changefeed.Workspaces, id.String()), func(ctx context.Context) error {
		w, err := s.GetWorkspace(ctx, id)
		if err == nil && w != nil {
			fn(w)
		}
		return err
	}), nil
}

func (s *Store) SubscribePage(ctx context.Context, id models.PageID, fn func(*models.Page)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForRow(changefeed.Pages, id.String()), func(ctx context.Context) error {
		p, err := s.GetPage(ctx, id)
		if err == nil && p != nil {
			fn(p)
		}
		return err
	}), nil
}

func (s *Store) SubscribeBlocks(ctx context.Context, pageID models.PageID, fn func([]*models.Block)) (store.Subscription, error) {
	return s.subscribe(ctx, changefeed.ForChildren(changefeed.Blocks, pageID.String()), func(ctx context.Context) error {
		blocks, err := s.ListBlocks(ctx, pageID)
		if err == nil {
			fn(blocks)
		}
		return err
	}), nil
}

func (s *Store) subscribe(ctx context.Context, match func(changefeed.Change) bool, refresh func(context.Context) error) store.Subscription {
	subCtx, cancelCtx := context.WithCancel(context.WithoutCancel(ctx))
	cancel := s.feed.Subscribe(match, func() {
		if subCtx.Err() != nil {
			return
		}
		if err := refresh(subCtx); err != nil && subCtx.Err() == nil {
			s.log.Warn().Err(err).Msg("subscription refresh failed")
		}
	})
	return store.SubscriptionFunc(func() error {
		cancelCtx()
		cancel()
		return nil
	})
}
