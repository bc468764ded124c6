package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// entity names the table an identifier lives in. The kinds below are the only
// implementations, so every ID type is bound to exactly one table.
type entity interface {
	table() string
	noun() string
}

type workspaceEntity struct{}

func (workspaceEntity) table() string { return "workspaces" }
func (workspaceEntity) noun() string  { return "workspace" }

type pageEntity struct{}

func (pageEntity) table() string { return "pages" }
func (pageEntity) noun() string  { return "page" }

type blockEntity struct{}

func (blockEntity) table() string { return "blocks" }
func (blockEntity) noun() string  { return "block" }

type userEntity struct{}

func (userEntity) table() string { return "users" }
func (userEntity) noun() string  { return "user" }

// ID is a UUID-backed identifier tied to one entity table.
//
// The same value travels through every layer: as a JSON string over the HTTP
// API and in the local snapshot, as a SurrealDB record id (CBOR tag 8) in the
// document backend and as a uuid column in PostgreSQL.
type ID[E entity] struct {
	uuid uuid.UUID
}

type (
	WorkspaceID = ID[workspaceEntity]
	PageID      = ID[pageEntity]
	BlockID     = ID[blockEntity]
	UserID      = ID[userEntity]
)

func NewWorkspaceID() WorkspaceID { return WorkspaceID{uuid: uuid.New()} }
func NewPageID() PageID           { return PageID{uuid: uuid.New()} }
func NewBlockID() BlockID         { return BlockID{uuid: uuid.New()} }
func NewUserID() UserID           { return UserID{uuid: uuid.New()} }

func ParseWorkspaceID(s string) (WorkspaceID, error) { return parseID[workspaceEntity](s) }
func ParsePageID(s string) (PageID, error)           { return parseID[pageEntity](s) }
func ParseBlockID(s string) (BlockID, error)         { return parseID[blockEntity](s) }
func ParseUserID(s string) (UserID, error)           { return parseID[userEntity](s) }

func parseID[E entity](s string) (ID[E], error) {
	var e E
	id, err := uuid.Parse(s)
	if err != nil {
		return ID[E]{}, fmt.Errorf("invalid %s ID: %w", e.noun(), err)
	}
	return ID[E]{uuid: id}, nil
}

func (id ID[E]) UUID() uuid.UUID { return id.uuid }
func (id ID[E]) IsZero() bool    { return id.uuid == uuid.Nil }

func (id ID[E]) String() string {
	if id.IsZero() {
		return ""
	}
	return id.uuid.String()
}

// Table returns the name of the table the identifier belongs to.
func (id ID[E]) Table() string {
	var e E
	return e.table()
}

func (id ID[E]) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: id.Table(),
		ID:    id.uuid.String(),
	}
}

// MarshalText makes IDs usable both as JSON values and as JSON object keys.
// The zero ID encodes as the empty string.
func (id ID[E]) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID[E]) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		id.uuid = uuid.Nil
		return nil
	}
	parsed, err := parseID[E](string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID[E]) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{id.Table(), id.uuid.String()},
	})
}

func (id *ID[E]) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, id.Table(), &id.uuid)
}

func (id ID[E]) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return id.uuid.String(), nil
}

func (id *ID[E]) Scan(value any) error {
	return scanUUID(value, &id.uuid)
}

func (ID[E]) GormDataType() string { return "uuid" }

// scanUUID is a helper for implementing sql.Scanner for PostgreSQL/GORM
func scanUUID(value any, target *uuid.UUID) error {
	if value == nil {
		*target = uuid.Nil
		return nil
	}

	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	case [16]byte:
		*target = uuid.UUID(v)
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}

// unmarshalCBORID decodes a SurrealDB record id.
// SurrealDB uses CBOR tag 8 for record ids, with [table, id] as content.
func unmarshalCBORID(data []byte, expectedTable string, target *uuid.UUID) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// CBOR null (0xf6) and undefined (0xf7) decode to the zero ID
	if data[0] == 0xf6 || data[0] == 0xf7 {
		*target = uuid.Nil
		return nil
	}

	if majorType := data[0] >> 5; majorType != 6 {
		return fmt.Errorf("expected CBOR tag for RecordID, got major type %d", majorType)
	}

	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
	}
	if tag.Number != 8 {
		return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
	}

	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 2 {
		return fmt.Errorf("invalid RecordID format: expected [table, id] array")
	}

	table, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: table name must be string")
	}
	if table != expectedTable {
		return fmt.Errorf("expected table %s, got %s", expectedTable, table)
	}

	idStr, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: ID must be string")
	}

	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid UUID in RecordID: %w", err)
	}
	*target = parsed
	return nil
}
