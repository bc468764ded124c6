// Package local persists the whole workspace as one snapshot in a
// [github.com/worklin/worklin/pkg/blobstore.Store].
//
// The snapshot is JSON of the form {"pages": [...]}, with blocks embedded in
// their page in display order and timestamps written as ISO-8601 strings with
// millisecond precision. Block order is not written; it is the array
// position.
//
// [Adapter.Save] and [Adapter.Load] never fail: a failed save is logged and
// dropped, and a missing or unreadable snapshot loads as the onboarding
// workspace. [Adapter.Read] and [Adapter.Write] expose the errors for callers
// that need them, such as [Repository] and the sync command.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/worklin/worklin/pkg/blobstore"
	"github.com/worklin/worklin/pkg/models"
)

// DefaultKey is the blob key the snapshot is stored under.
const DefaultKey = "worklin-workspace"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type snapshot struct {
	Pages []pageRecord `json:"pages"`
}

type pageRecord struct {
	ID        models.PageID `json:"id"`
	Title     string        `json:"title"`
	Icon      string        `json:"icon"`
	Blocks    []blockRecord `json:"blocks"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
}

type blockRecord struct {
	ID        models.BlockID   `json:"id"`
	Type      models.BlockType `json:"type"`
	Text      string           `json:"text"`
	Checked   bool             `json:"checked"`
	CreatedAt string           `json:"createdAt,omitempty"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

type Adapter struct {
	blobs blobstore.Store
	key   string
	log   zerolog.Logger
}

type Option func(*Adapter)

func WithKey(key string) Option {
	return func(a *Adapter) { a.key = key }
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

func New(blobs blobstore.Store, opts ...Option) *Adapter {
	a := &Adapter{
		blobs: blobs,
		key:   DefaultKey,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Save overwrites the stored snapshot with ws. Failures are logged and
// swallowed; the in-memory state stays authoritative.
func (a *Adapter) Save(ctx context.Context, ws *models.Workspace) {
	if err := a.Write(ctx, ws); err != nil {
		a.log.Warn().Err(err).Str("key", a.key).Msg("failed to save workspace snapshot")
		return
	}
	a.log.Debug().Str("key", a.key).Int("pages", len(ws.Pages)).Msg("saved workspace snapshot")
}

// Load returns the stored workspace, or the onboarding workspace when there
// is none or it cannot be parsed.
func (a *Adapter) Load(ctx context.Context) *models.Workspace {
	ws, err := a.Read(ctx)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		a.log.Info().Str("key", a.key).Msg("no workspace snapshot, starting with onboarding workspace")
		return models.DefaultWorkspace()
	case err != nil:
		a.log.Warn().Err(err).Str("key", a.key).Msg("failed to load workspace snapshot, starting with onboarding workspace")
		return models.DefaultWorkspace()
	}
	return ws
}

// Write serializes ws and stores it.
func (a *Adapter) Write(ctx context.Context, ws *models.Workspace) error {
	data, err := Marshal(ws)
	if err != nil {
		return err
	}
	if err := a.blobs.Put(ctx, a.key, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Read loads and parses the stored snapshot. A missing snapshot is reported
// as blobstore.ErrNotFound.
func (a *Adapter) Read(ctx context.Context) (*models.Workspace, error) {
	data, err := a.blobs.Get(ctx, a.key)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Marshal encodes ws in the snapshot format.
func Marshal(ws *models.Workspace) ([]byte, error) {
	snap := snapshot{Pages: make([]pageRecord, 0, len(ws.Pages))}
	for _, p := range ws.Pages {
		rec := pageRecord{
			ID:        p.ID,
			Title:     p.Title,
			Icon:      p.Icon,
			Blocks:    make([]blockRecord, 0, len(p.Blocks)),
			CreatedAt: formatTime(p.CreatedAt),
			UpdatedAt: formatTime(p.UpdatedAt),
		}
		blocks := append([]*models.Block(nil), p.Blocks...)
		models.SortBlocks(blocks)
		for _, b := range blocks {
			rec.Blocks = append(rec.Blocks, blockRecord{
				ID:        b.ID,
				Type:      b.Type,
				Text:      b.Text,
				Checked:   b.Checked,
				CreatedAt: formatOptionalTime(b.CreatedAt),
				UpdatedAt: formatOptionalTime(b.UpdatedAt),
			})
		}
		snap.Pages = append(snap.Pages, rec)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a snapshot. Unknown block types and malformed timestamps
// are errors.
func Unmarshal(data []byte) (*models.Workspace, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	ws := &models.Workspace{Pages: make([]*models.Page, 0, len(snap.Pages))}
	for _, rec := range snap.Pages {
		page := &models.Page{
			ID:     rec.ID,
			Title:  rec.Title,
			Icon:   rec.Icon,
			Blocks: make([]*models.Block, 0, len(rec.Blocks)),
		}
		var err error
		if page.CreatedAt, err = parseTime(rec.CreatedAt); err != nil {
			return nil, err
		}
		if page.UpdatedAt, err = parseTime(rec.UpdatedAt); err != nil {
			return nil, err
		}

		for i, br := range rec.Blocks {
			if err := br.Type.Validate(); err != nil {
				return nil, fmt.Errorf("failed to parse snapshot: %w", err)
			}
			b := &models.Block{
				ID:      br.ID,
				PageID:  page.ID,
				Type:    br.Type,
				Text:    br.Text,
				Checked: br.Checked,
				Order:   i,
			}
			if b.CreatedAt, err = parseOptionalTime(br.CreatedAt); err != nil {
				return nil, err
			}
			if b.UpdatedAt, err = parseOptionalTime(br.UpdatedAt); err != nil {
				return nil, err
			}
			page.Blocks = append(page.Blocks, b)
		}
		ws.Pages = append(ws.Pages, page)
	}
	return ws, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}
