package models

import "time"

// DefaultWorkspace returns the onboarding workspace shown on first start or
// when the stored snapshot cannot be read.
func DefaultWorkspace() *Workspace {
	now := time.Now()
	page := &Page{
		ID:        NewPageID(),
		Title:     "Welcome to Worklin",
		Icon:      "📝",
		CreatedAt: now,
		UpdatedAt: now,
	}

	content := []struct {
		t    BlockType
		text string
	}{
		{BlockTypeHeading1, "Welcome to Worklin"},
		{BlockTypeParagraph, "✨ Start typing to create your first note..."},
		{BlockTypeParagraph, "📚 Click \"New Page\" in the sidebar to add more pages"},
		{BlockTypeBulletedList, "Supports headings, paragraphs, lists, and checklists"},
	}
	for i, c := range content {
		b := NewBlock(c.t, i)
		b.PageID = page.ID
		b.Text = c.text
		b.CreatedAt, b.UpdatedAt = now, now
		page.Blocks = append(page.Blocks, b)
	}

	return &Workspace{
		Pages:     []*Page{page},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
