package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidBlockType is returned for block types outside the closed set.
var ErrInvalidBlockType = errors.New("invalid block type")

// BlockType represents the type of content block
type BlockType string

const (
	BlockTypeParagraph    BlockType = "paragraph"
	BlockTypeHeading1     BlockType = "heading1"
	BlockTypeHeading2     BlockType = "heading2"
	BlockTypeHeading3     BlockType = "heading3"
	BlockTypeBulletedList BlockType = "bulleted-list"
	BlockTypeCheckbox     BlockType = "checkbox"
)

var blockTypeLabels = map[BlockType]string{
	BlockTypeParagraph:    "Text",
	BlockTypeHeading1:     "H1",
	BlockTypeHeading2:     "H2",
	BlockTypeHeading3:     "H3",
	BlockTypeBulletedList: "List",
	BlockTypeCheckbox:     "Todo",
}

// BlockTypes lists every block type in toolbar order.
func BlockTypes() []BlockType {
	return []BlockType{
		BlockTypeParagraph,
		BlockTypeHeading1,
		BlockTypeHeading2,
		BlockTypeHeading3,
		BlockTypeBulletedList,
		BlockTypeCheckbox,
	}
}

func ParseBlockType(s string) (BlockType, error) {
	t := BlockType(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t BlockType) Validate() error {
	if _, ok := blockTypeLabels[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBlockType, string(t))
	}
	return nil
}

// Label is the short name shown in the block type picker.
func (t BlockType) Label() string {
	return blockTypeLabels[t]
}

// Block is a single typed unit of page content.
//
// Order ranks the block within its page. In the embedded representation it
// always equals the block's array position; remote backends store it as a
// sort key that may have gaps after deletes.
type Block struct {
	ID        BlockID   `gorm:"type:uuid;primaryKey" json:"id"`
	PageID    PageID    `gorm:"type:uuid;not null;index" json:"pageId"`
	Type      BlockType `gorm:"not null" json:"type"`
	Text      string    `gorm:"type:text;not null;default:''" json:"text"`
	Checked   bool      `gorm:"not null;default:false" json:"checked"`
	Order     int       `gorm:"not null" json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBlock returns a block with default content appended at position order.
// An empty type defaults to a paragraph.
func NewBlock(t BlockType, order int) *Block {
	if t == "" {
		t = BlockTypeParagraph
	}
	now := time.Now()
	return &Block{
		ID:        NewBlockID(),
		Type:      t,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// BlockPatch is a partial block update. Nil fields are left untouched.
type BlockPatch struct {
	Type    *BlockType `json:"type,omitempty"`
	Text    *string    `json:"text,omitempty"`
	Checked *bool      `json:"checked,omitempty"`
}

func (p BlockPatch) IsEmpty() bool {
	return p.Type == nil && p.Text == nil && p.Checked == nil
}

func (p BlockPatch) Validate() error {
	if p.Type != nil {
		return p.Type.Validate()
	}
	return nil
}

// Apply merges the patch into b and reports whether any field changed.
func (p BlockPatch) Apply(b *Block) bool {
	changed := false
	if p.Type != nil && *p.Type != b.Type {
		b.Type = *p.Type
		changed = true
	}
	if p.Text != nil && *p.Text != b.Text {
		b.Text = *p.Text
		changed = true
	}
	if p.Checked != nil && *p.Checked != b.Checked {
		b.Checked = *p.Checked
		changed = true
	}
	return changed
}

// Fields returns the patch as a column map for merge-style updates.
func (p BlockPatch) Fields() map[string]any {
	fields := make(map[string]any, 3)
	if p.Type != nil {
		fields["type"] = string(*p.Type)
	}
	if p.Text != nil {
		fields["text"] = *p.Text
	}
	if p.Checked != nil {
		fields["checked"] = *p.Checked
	}
	return fields
}

// SortBlocks orders blocks by Order. The sort is stable, so ties keep their
// current relative position.
func SortBlocks(blocks []*Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Order < blocks[j].Order
	})
}

// Renumber rewrites Order to match array position.
func Renumber(blocks []*Block) {
	for i, b := range blocks {
		b.Order = i
	}
}

func BlockIDs(blocks []*Block) []BlockID {
	ids := make([]BlockID, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	return ids
}

func cloneBlocks(blocks []*Block) []*Block {
	if blocks == nil {
		return nil
	}
	out := make([]*Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
