package client

import (
	"time"

	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/session"
)

// Request and response bodies shared by the server handlers and the client.

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Remote   string `json:"remote"`
	Policy   string `json:"policy"`
	ReadOnly bool   `json:"readOnly"`
	Time     int64  `json:"time"`
}

type LoginRequest struct {
	Name string `json:"name"`
}

type AuthResponse struct {
	User *models.User `json:"user"`
}

type CreatePageRequest struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

type CreateBlockRequest struct {
	Type models.BlockType `json:"type"`
}

type ReorderRequest struct {
	BlockIDs []models.BlockID `json:"blockIds"`
}

// MoveRequest drops Source onto Target.
type MoveRequest struct {
	Source models.BlockID `json:"source"`
	Target models.BlockID `json:"target"`
}

type BlockOrderResponse struct {
	BlockIDs []models.BlockID `json:"blockIds"`
}

type ToggleResponse struct {
	Checked bool `json:"checked"`
}

// SidebarRequest sets the sidebar to Open, or toggles it when Open is nil.
type SidebarRequest struct {
	Open *bool `json:"open,omitempty"`
}

type SidebarResponse struct {
	SidebarOpen bool `json:"sidebarOpen"`
}

type BlockTypeInfo struct {
	Type  models.BlockType `json:"type"`
	Label string           `json:"label"`
}

type ReadOnlyMode struct {
	ReadOnly bool `json:"readOnly"`
}

// Event types sent on the /api/events websocket.
const (
	EventState     = "state"
	EventSyncError = "syncError"
)

// Event is one message of the /api/events stream. State is set for
// EventState, SyncError for EventSyncError.
type Event struct {
	Type      string          `json:"type"`
	Changes   []string        `json:"changes,omitempty"`
	State     *session.State  `json:"state,omitempty"`
	SyncError *SyncErrorEvent `json:"syncError,omitempty"`
}

type SyncErrorEvent struct {
	Op      string    `json:"op"`
	ID      string    `json:"id,omitempty"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}
