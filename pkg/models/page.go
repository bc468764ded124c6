package models

import "time"

const (
	// UntitledPage is shown for pages whose title is empty.
	UntitledPage = "Untitled Page"
	// DefaultPageIcon is the glyph given to new pages.
	DefaultPageIcon = "📄"
)

// Page is a named, ordered collection of blocks.
//
// Blocks are embedded in the local snapshot. Remote backends keep them in a
// separate collection keyed by page and always store an empty slice here.
type Page struct {
	ID          PageID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID WorkspaceID `gorm:"type:uuid;index" json:"workspaceId"`
	Title       string      `gorm:"not null;default:''" json:"title"`
	Icon        string      `json:"icon"`
	Blocks      []*Block    `gorm:"-" json:"blocks"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// NewPage returns an empty page. Empty title and icon fall back to the
// defaults.
func NewPage(title, icon string) *Page {
	if title == "" {
		title = UntitledPage
	}
	if icon == "" {
		icon = DefaultPageIcon
	}
	now := time.Now()
	return &Page{
		ID:        NewPageID(),
		Title:     title,
		Icon:      icon,
		Blocks:    []*Block{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *Page) DisplayTitle() string {
	if p.Title == "" {
		return UntitledPage
	}
	return p.Title
}

// Block returns the block with the given id and its position, or nil and -1.
func (p *Page) Block(id BlockID) (*Block, int) {
	for i, b := range p.Blocks {
		if b.ID == id {
			return b, i
		}
	}
	return nil, -1
}

func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	c := *p
	c.Blocks = cloneBlocks(p.Blocks)
	return &c
}

// PagePatch is a partial page update. Nil fields are left untouched.
type PagePatch struct {
	Title *string `json:"title,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

func (p PagePatch) IsEmpty() bool {
	return p.Title == nil && p.Icon == nil
}

func (p PagePatch) Apply(page *Page) bool {
	changed := false
	if p.Title != nil && *p.Title != page.Title {
		page.Title = *p.Title
		changed = true
	}
	if p.Icon != nil && *p.Icon != page.Icon {
		page.Icon = *p.Icon
		changed = true
	}
	return changed
}

func (p PagePatch) Fields() map[string]any {
	fields := make(map[string]any, 2)
	if p.Title != nil {
		fields["title"] = *p.Title
	}
	if p.Icon != nil {
		fields["icon"] = *p.Icon
	}
	return fields
}

// Workspace is the top-level collection of pages.
// Pages are only populated for the local snapshot; remote backends list them
// through their own collection.
type Workspace struct {
	ID        WorkspaceID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string      `gorm:"not null;default:''" json:"name"`
	OwnerID   UserID      `gorm:"type:uuid" json:"ownerId"`
	Members   []string    `gorm:"serializer:json;type:jsonb" json:"members"`
	Pages     []*Page     `gorm:"-" json:"pages,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (w *Workspace) Page(id PageID) (*Page, int) {
	for i, p := range w.Pages {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func (w *Workspace) Clone() *Workspace {
	if w == nil {
		return nil
	}
	c := *w
	if w.Members != nil {
		c.Members = append([]string(nil), w.Members...)
	}
	c.Pages = ClonePages(w.Pages)
	return &c
}

func ClonePages(pages []*Page) []*Page {
	if pages == nil {
		return nil
	}
	out := make([]*Page, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}

// WorkspacePatch is a partial workspace update.
type WorkspacePatch struct {
	Name    *string   `json:"name,omitempty"`
	Members *[]string `json:"members,omitempty"`
}

func (p WorkspacePatch) Fields() map[string]any {
	fields := make(map[string]any, 2)
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Members != nil {
		fields["members"] = *p.Members
	}
	return fields
}

func (p WorkspacePatch) Apply(w *Workspace) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Members != nil {
		w.Members = append([]string(nil), (*p.Members)...)
	}
}

// User is the signed-in session user.
type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}
