package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is one record in a subject's append-only timeline. Created once at
// append time, never mutated; deletion is out of scope.
type Event struct {
	ID            uuid.UUID      `db:"id"             json:"id"`
	TenantID      string         `db:"tenant_id"      json:"tenant_id"`
	SubjectID     string         `db:"subject_id"     json:"subject_id"`
	EventType     string         `db:"event_type"     json:"event_type"`
	SchemaVersion int            `db:"schema_version" json:"schema_version"`
	EventTime     time.Time      `db:"event_time"     json:"event_time"`
	Payload       map[string]any `db:"payload"        json:"payload"`
	Hash          string         `db:"hash"           json:"hash"`
	PreviousHash  *string        `db:"previous_hash"  json:"previous_hash,omitempty"`
	CreatedAt     time.Time      `db:"created_at"     json:"created_at"`
}

// IsGenesis reports whether this is the first event of its subject's chain.
func (e *Event) IsGenesis() bool {
	return e.PreviousHash == nil || *e.PreviousHash == ""
}
