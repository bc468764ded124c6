package models_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/models"
)

func TestParseBlockType(t *testing.T) {
	for _, bt := range models.BlockTypes() {
		parsed, err := models.ParseBlockType(string(bt))
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
		assert.NotEmpty(t, bt.Label())
	}

	_, err := models.ParseBlockType("code")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidBlockType))
}

func TestBlockTypeLabels(t *testing.T) {
	assert.Equal(t, "Text", models.BlockTypeParagraph.Label())
	assert.Equal(t, "H1", models.BlockTypeHeading1.Label())
	assert.Equal(t, "List", models.BlockTypeBulletedList.Label())
	assert.Equal(t, "Todo", models.BlockTypeCheckbox.Label())
}

func TestNewBlockDefaults(t *testing.T) {
	b := models.NewBlock("", 4)
	assert.False(t, b.ID.IsZero())
	assert.Equal(t, models.BlockTypeParagraph, b.Type)
	assert.Equal(t, "", b.Text)
	assert.False(t, b.Checked)
	assert.Equal(t, 4, b.Order)
}

func TestNewPageDefaults(t *testing.T) {
	p := models.NewPage("", "")
	assert.Equal(t, models.UntitledPage, p.Title)
	assert.Equal(t, models.DefaultPageIcon, p.Icon)
	assert.NotNil(t, p.Blocks)
	assert.Empty(t, p.Blocks)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	p.Title = ""
	assert.Equal(t, models.UntitledPage, p.DisplayTitle())
}

func TestBlockPatchApply(t *testing.T) {
	b := models.NewBlock(models.BlockTypeCheckbox, 0)
	b.Text = "buy milk"

	checked := true
	changed := models.BlockPatch{Checked: &checked}.Apply(b)
	assert.True(t, changed)
	assert.True(t, b.Checked)
	assert.Equal(t, "buy milk", b.Text)
	assert.Equal(t, models.BlockTypeCheckbox, b.Type)

	assert.False(t, models.BlockPatch{Checked: &checked}.Apply(b))
	assert.True(t, models.BlockPatch{}.IsEmpty())

	bad := models.BlockType("quote")
	assert.Error(t, models.BlockPatch{Type: &bad}.Validate())
}

func TestPatchFields(t *testing.T) {
	text := "hello"
	assert.Equal(t, map[string]any{"text": "hello"}, models.BlockPatch{Text: &text}.Fields())

	title := "Notes"
	assert.Equal(t, map[string]any{"title": "Notes"}, models.PagePatch{Title: &title}.Fields())
}

func TestSortBlocksIsStable(t *testing.T) {
	a := &models.Block{ID: models.NewBlockID(), Order: 1}
	b := &models.Block{ID: models.NewBlockID(), Order: 0}
	c := &models.Block{ID: models.NewBlockID(), Order: 1}

	blocks := []*models.Block{a, b, c}
	models.SortBlocks(blocks)
	assert.Equal(t, []models.BlockID{b.ID, a.ID, c.ID}, models.BlockIDs(blocks))

	models.Renumber(blocks)
	assert.Equal(t, 2, c.Order)
}

func TestPageCloneIsDeep(t *testing.T) {
	p := models.NewPage("Deep", "")
	p.Blocks = append(p.Blocks, models.NewBlock(models.BlockTypeParagraph, 0))

	c := p.Clone()
	c.Blocks[0].Text = "changed"
	c.Title = "other"

	assert.Equal(t, "", p.Blocks[0].Text)
	assert.Equal(t, "Deep", p.Title)
}

func TestDefaultWorkspace(t *testing.T) {
	ws := models.DefaultWorkspace()
	require.Len(t, ws.Pages, 1)

	page := ws.Pages[0]
	assert.Equal(t, "Welcome to Worklin", page.Title)
	assert.Equal(t, "📝", page.Icon)
	require.Len(t, page.Blocks, 4)

	assert.Equal(t, models.BlockTypeHeading1, page.Blocks[0].Type)
	assert.Equal(t, models.BlockTypeBulletedList, page.Blocks[3].Type)
	for i, b := range page.Blocks {
		assert.Equal(t, i, b.Order)
		assert.Equal(t, page.ID, b.PageID)
	}
}
