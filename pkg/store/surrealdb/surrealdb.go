// Package surrealdb implements [github.com/worklin/worklin/pkg/store.RemoteStore]
// on SurrealDB using SurrealQL.
//
// The connection uses the surrealcbor codec, so typed ids travel as record
// ids and timestamps as native datetimes. Records are written with the same
// field names the JSON API uses (pageId, createdAt, ...).
//
// Every create and update stamps createdAt/updatedAt with time::now() on the
// server. Reorder and cascade delete run inside BEGIN/COMMIT TRANSACTION, so
// they apply completely or not at all.
//
// Subscriptions are LIVE SELECT queries. A notification is only used as a
// signal: the subscriber re-reads the entity or the ordered collection and
// hands that to the callback, which keeps the callback contract identical to
// the other backends.
//
// Queries are always parameterized:
//
//	SELECT * FROM blocks WHERE pageId = $page
//
// with $page bound to a [github.com/worklin/worklin/pkg/models.PageID], which
// encodes itself as a record id.
package surrealdb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/store"
)

const (
	workspacesTable = "workspaces"
	pagesTable      = "pages"
	blocksTable     = "blocks"
)

// Message of the THROW guarding ReorderBlocks; matched to map the failure
// back to store.ErrUnknownBlocks.
const unknownBlocksMessage = "reorder references blocks that are not on the page"

type Config struct {
	// URL is the RPC endpoint, e.g. ws://localhost:8000/rpc.
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type Store struct {
	db  *surrealdb.DB
	cfg Config
	log zerolog.Logger
}

var _ store.RemoteStore = (*Store)(nil)

type Option func(*Store)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New connects, signs in when credentials are set and selects the
// namespace and database.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	// surrealcbor is required for time.Time and record ids to round-trip
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log.Info().
		Str("url", cfg.URL).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("connected to SurrealDB")
	return s, nil
}

// Migrate defines the tables and the indexes the list queries use. Tables
// stay schemaless.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
		DEFINE TABLE IF NOT EXISTS workspaces SCHEMALESS;
		DEFINE TABLE IF NOT EXISTS pages SCHEMALESS;
		DEFINE TABLE IF NOT EXISTS blocks SCHEMALESS;
		DEFINE INDEX IF NOT EXISTS pages_workspace ON pages FIELDS workspaceId;
		DEFINE INDEX IF NOT EXISTS blocks_page ON blocks FIELDS pageId;
	`
	if _, err := surrealdb.Query[any](ctx, s.db, query, nil); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close(context.Background())
}

// first returns the first record of the first statement, or nil when it
// produced none.
func first[T any](result *[]surrealdb.QueryResult[[]T]) *T {
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return nil
	}
	v := (*result)[0].Result[0]
	return &v
}

func all[T any](result *[]surrealdb.QueryResult[[]T]) []*T {
	if result == nil || len(*result) == 0 {
		return []*T{}
	}
	rows := (*result)[0].Result
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

// selectOne reads a record by id. A missing record is (nil, nil).
func selectOne[T any](ctx context.Context, db *surrealdb.DB, id any) (*T, error) {
	result, err := surrealdb.Query[[]T](ctx, db, "SELECT * FROM $id", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return first(result), nil
}

// updateOne sets the given fields and stamps updatedAt. The field names come
// from the patch types, never from user input.
func updateOne[T any](ctx context.Context, db *surrealdb.DB, id any, fields map[string]any) (*T, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := []string{"updatedAt = time::now()"}
	vars := map[string]any{"id": id}
	for _, k := range keys {
		sets = append(sets, fmt.Sprintf("`%s` = $f_%s", k, k))
		vars["f_"+k] = fields[k]
	}

	query := "UPDATE $id SET " + strings.Join(sets, ", ") + " RETURN AFTER"
	result, err := surrealdb.Query[[]T](ctx, db, query, vars)
	if err != nil {
		return nil, err
	}
	updated := first(result)
	if updated == nil {
		return nil, store.ErrNotFound
	}
	return updated, nil
}

// Workspace operations

func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) (*models.Workspace, error) {
	id := workspace.ID
	if id.IsZero() {
		id = models.NewWorkspaceID()
	}
	members := workspace.Members
	if members == nil {
		members = []string{}
	}

	query := `CREATE $id SET
		name = $name,
		ownerId = $owner,
		members = $members,
		createdAt = time::now(),
		updatedAt = time::now()`
	result, err := surrealdb.Query[[]models.Workspace](ctx, s.db, query, map[string]any{
		"id":      id.RecordID(),
		"name":    workspace.Name,
		"owner":   workspace.OwnerID,
		"members": members,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	created := first(result)
	if created == nil {
		return nil, fmt.Errorf("failed to create workspace: no record returned")
	}
	return created, nil
}

func (s *Store) GetWorkspace(ctx context.Context, id models.WorkspaceID) (*models.Workspace, error) {
	w, err := selectOne[models.Workspace](ctx, s.db, id.RecordID())
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return w, nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, id models.WorkspaceID, patch models.WorkspacePatch) (*models.Workspace, error) {
	w, err := updateOne[models.Workspace](ctx, s.db, id.RecordID(), patch.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return w, nil
}

func (s *Store) DeleteWorkspace(ctx context.Context, id models.WorkspaceID) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $id", map[string]any{"id": id.RecordID()}); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return nil
}

// Page operations

func (s *Store) CreatePage(ctx context.Context, page *models.Page) (*models.Page, error) {
	id := page.ID
	if id.IsZero() {
		id = models.NewPageID()
	}

	query := `CREATE $id SET
		workspaceId = $workspace,
		title = $title,
		icon = $icon,
		blocks = [],
		createdAt = time::now(),
		updatedAt = time::now()`
	result, err := surrealdb.Query[[]models.Page](ctx, s.db, query, map[string]any{
		"id":        id.RecordID(),
		"workspace": page.WorkspaceID,
		"title":     page.Title,
		"icon":      page.Icon,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	created := first(result)
	if created == nil {
		return nil, fmt.Errorf("failed to create page: no record returned")
	}
	return normalizePage(created), nil
}

func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	p, err := selectOne[models.Page](ctx, s.db, id.RecordID())
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return normalizePage(p), nil
}

func (s *Store) ListPages(ctx context.Context, workspaceID models.WorkspaceID) ([]*models.Page, error) {
	result, err := surrealdb.Query[[]models.Page](ctx, s.db,
		"SELECT * FROM pages WHERE workspaceId = $workspace ORDER BY updatedAt DESC",
		map[string]any{"workspace": workspaceID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	pages := all(result)
	for _, p := range pages {
		normalizePage(p)
	}
	return pages, nil
}

func (s *Store) UpdatePage(ctx context.Context, id models.PageID, patch models.PagePatch) (*models.Page, error) {
	p, err := updateOne[models.Page](ctx, s.db, id.RecordID(), patch.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to update page: %w", err)
	}
	return normalizePage(p), nil
}

func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $id", map[string]any{"id": id.RecordID()}); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

func (s *Store) DeletePageCascade(ctx context.Context, id models.PageID) error {
	query := `
		BEGIN TRANSACTION;
		DELETE blocks WHERE pageId = $page;
		DELETE $page;
		COMMIT TRANSACTION;
	`
	if _, err := surrealdb.Query[any](ctx, s.db, query, map[string]any{"page": id.RecordID()}); err != nil {
		return fmt.Errorf("failed to delete page cascade: %w", err)
	}
	return nil
}

// normalizePage makes sure remote pages always carry an empty block slice.
func normalizePage(p *models.Page) *models.Page {
	if p != nil {
		p.Blocks = []*models.Block{}
	}
	return p
}

// Block operations

func (s *Store) CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error) {
	if err := block.Type.Validate(); err != nil {
		return nil, err
	}
	id := block.ID
	if id.IsZero() {
		id = models.NewBlockID()
	}

	query := "CREATE $id SET " +
		"pageId = $page, type = $type, text = $text, checked = $checked, `order` = $order, " +
		"createdAt = time::now(), updatedAt = time::now()"
	result, err := surrealdb.Query[[]models.Block](ctx, s.db, query, map[string]any{
		"id":      id.RecordID(),
		"page":    block.PageID,
		"type":    string(block.Type),
		"text":    block.Text,
		"checked": block.Checked,
		"order":   block.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create block: %w", err)
	}
	created := first(result)
	if created == nil {
		return nil, fmt.Errorf("failed to create block: no record returned")
	}
	return created, nil
}

func (s *Store) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	b, err := selectOne[models.Block](ctx, s.db, id.RecordID())
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return b, nil
}

func (s *Store) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	result, err := surrealdb.Query[[]models.Block](ctx, s.db,
		"SELECT * FROM blocks WHERE pageId = $page ORDER BY `order` ASC, createdAt ASC",
		map[string]any{"page": pageID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return all(result), nil
}

func (s *Store) UpdateBlock(ctx context.Context, id models.BlockID, patch models.BlockPatch) (*models.Block, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	b, err := updateOne[models.Block](ctx, s.db, id.RecordID(), patch.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to update block: %w", err)
	}
	return b, nil
}

func (s *Store) DeleteBlock(ctx context.Context, id models.BlockID) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE $id", map[string]any{"id": id.RecordID()}); err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// ReorderBlocks rewrites every order in one transaction. The guard throws
// before any update when an id is missing or belongs to another page.
func (s *Store) ReorderBlocks(ctx context.Context, pageID models.PageID, blockIDs []models.BlockID) error {
	ids := make([]any, len(blockIDs))
	items := make([]map[string]any, len(blockIDs))
	for i, id := range blockIDs {
		ids[i] = id.RecordID()
		items[i] = map[string]any{"id": id.RecordID(), "order": i}
	}

	query := "BEGIN TRANSACTION;\n" +
		"LET $found = (SELECT VALUE id FROM blocks WHERE pageId = $page AND id INSIDE $ids);\n" +
		"IF array::len($found) != array::len(array::distinct($ids)) { THROW $message };\n" +
		"FOR $item IN $items { UPDATE $item.id SET `order` = $item.order, updatedAt = time::now(); };\n" +
		"COMMIT TRANSACTION;"
	_, err := surrealdb.Query[any](ctx, s.db, query, map[string]any{
		"page":    pageID,
		"ids":     ids,
		"items":   items,
		"message": unknownBlocksMessage,
	})
	if err != nil {
		if strings.Contains(err.Error(), unknownBlocksMessage) {
			return fmt.Errorf("failed to reorder blocks: %w", store.ErrUnknownBlocks)
		}
		return fmt.Errorf("failed to reorder blocks: %w", err)
	}
	return nil
}
