package models

import "time"

// EntityType identifies which kind of knowledge-base object a change or a
// remote file refers to.
type EntityType string

const (
	EntityNote    EntityType = "note"
	EntityTag     EntityType = "tag"
	EntitySetting EntityType = "setting"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityNote, EntityTag, EntitySetting:
		return true
	}
	return false
}

// ChangeAction is the kind of local mutation recorded in the change log.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Valid reports whether a is one of the known change actions.
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ChangeNotification is what the host application reports for every local
// mutation of a note, tag, or setting. Content carries the full serialized
// entity snapshot for create/update and is ignored for delete.
type ChangeNotification struct {
	EntityType EntityType   `json:"entity_type"`
	Action     ChangeAction `json:"action"`
	EntityID   string       `json:"entity_id"`
	Content    []byte       `json:"content,omitempty"`
}

// ChangeRecord is a single durable entry of the change log. Records are
// immutable once created and are removed only after the sync run that
// observed them completes.
type ChangeRecord struct {
	// ID is a unique record identifier (UUID v4), distinct from EntityID:
	// the same entity may appear in several records.
	ID string `json:"id"`

	EntityType EntityType   `json:"entity_type"`
	Action     ChangeAction `json:"action"`
	EntityID   string       `json:"entity_id"`

	// Payload is the opaque entity snapshot taken at mutation time.
	// Empty for delete records.
	Payload []byte `json:"payload,omitempty"`

	// ContentHash is the hex-encoded SHA-256 of Payload. Identical content
	// always produces an identical hash, which makes repeated uploads of the
	// same snapshot idempotent.
	ContentHash string `json:"content_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the entity identity this record belongs to. Records of the
// same entity must be processed in append order; records of different
// entities are independent.
func (r ChangeRecord) Key() string {
	return string(r.EntityType) + "/" + r.EntityID
}

// EntityState is the per-path three-way merge base persisted after every
// successful transfer: the local and remote content hashes as they were the
// last time both sides agreed. A side is considered modified when its
// current hash differs from the recorded one.
type EntityState struct {
	Path       string     `json:"path"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	LocalHash  string     `json:"local_hash"`
	RemoteHash string     `json:"remote_hash"`
	SyncedAt   time.Time  `json:"synced_at"`
}
