package session

import (
	"github.com/worklin/worklin/pkg/models"
)

// SetBlocks replaces the page's blocks wholesale. Blocks are sorted by order,
// ties keeping their given position, and then renumbered so order equals
// position. Blocks missing from the new slice are dropped.
func (s *Store) SetBlocks(pageID models.PageID, blocks []*models.Block) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		next := make([]*models.Block, len(blocks))
		for i, b := range blocks {
			next[i] = b.Clone()
			next[i].PageID = pageID
		}
		models.SortBlocks(next)
		models.Renumber(next)
		p.Blocks = next
		s.touch(p)
		return ChangedPages
	}) != 0
}

// AddBlock appends block to the page. Its order is set to the block count
// before the call.
func (s *Store) AddBlock(pageID models.PageID, block *models.Block) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		b := block.Clone()
		b.PageID = pageID
		b.Order = len(p.Blocks)
		p.Blocks = append(p.Blocks, b)
		s.touch(p)
		return ChangedPages
	}) != 0
}

// UpdateBlock merges the patch into the block. Only the patched fields and
// the updatedAt stamps change.
func (s *Store) UpdateBlock(pageID models.PageID, blockID models.BlockID, patch models.BlockPatch) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		b, _ := p.Block(blockID)
		if b == nil {
			return 0
		}
		patch.Apply(b)
		b.UpdatedAt = s.touch(p)
		return ChangedPages
	}) != 0
}

// DeleteBlock removes exactly that block. The rest keep their relative order
// and are renumbered.
func (s *Store) DeleteBlock(pageID models.PageID, blockID models.BlockID) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		_, i := p.Block(blockID)
		if i < 0 {
			return 0
		}
		p.Blocks = append(p.Blocks[:i:i], p.Blocks[i+1:]...)
		models.Renumber(p.Blocks)
		s.touch(p)
		return ChangedPages
	}) != 0
}

// ReorderBlocks puts the page's blocks in the order given by ids. Blocks not
// named keep their relative order after the named ones; unknown ids are
// ignored.
func (s *Store) ReorderBlocks(pageID models.PageID, ids []models.BlockID) bool {
	return s.update(func(st *State) Change {
		p := s.page(pageID)
		if p == nil {
			return 0
		}
		p.Blocks = arrange(p.Blocks, ids)
		models.Renumber(p.Blocks)
		s.touch(p)
		return ChangedPages
	}) != 0
}

func arrange(blocks []*models.Block, ids []models.BlockID) []*models.Block {
	byID := make(map[models.BlockID]*models.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	out := make([]*models.Block, 0, len(blocks))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
			delete(byID, id)
		}
	}
	for _, b := range blocks {
		if _, ok := byID[b.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}

// MoveBefore returns ids with source moved to the position target held, the
// result of dropping source onto target. Moving a block down places it after
// target, moving it up places it before. The input is not modified. When
// either id is missing or they are equal, a copy of ids is returned.
func MoveBefore(ids []models.BlockID, source, target models.BlockID) []models.BlockID {
	out := append([]models.BlockID(nil), ids...)
	from, to := -1, -1
	for i, id := range out {
		switch id {
		case source:
			from = i
		case target:
			to = i
		}
	}
	if from < 0 || to < 0 || from == to {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]models.BlockID{moved}, out[to:]...)...)
	return out
}
