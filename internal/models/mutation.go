// Package models provides data model definitions for the SnapNote client core.
package models

import (
	"encoding/json"
	"time"
)

// MutationKind identifies the remote call a queued mutation replays to.
type MutationKind string

const (
	MutationUpdate         MutationKind = "update"
	MutationDelete         MutationKind = "delete"
	MutationToggleFavorite MutationKind = "toggle_favorite"
)

// Valid reports whether the kind is one of the known mutation kinds.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationUpdate, MutationDelete, MutationToggleFavorite:
		return true
	}
	return false
}

// QueuedMutation is a durable record of one local write not yet confirmed by
// the server. The auto-incrementing ID doubles as the FIFO tiebreaker for
// mutations enqueued within the same second.
type QueuedMutation struct {
	ID         int64           `db:"id" json:"id"`
	Kind       MutationKind    `db:"kind" json:"kind"`
	TargetID   UUID            `db:"target_id" json:"target_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for QueuedMutation.
func (QueuedMutation) TableName() string {
	return "mutation_queue"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (m *QueuedMutation) CreatedAtTime() time.Time {
	return time.Unix(m.CreatedAt, 0)
}

// DecodePayload unmarshals the payload into dst.
func (m *QueuedMutation) DecodePayload(dst interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, dst)
}
