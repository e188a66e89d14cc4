package models

import (
	"encoding/json"
	"time"
)

// Mutation is one pending local change awaiting sync. At most one pending
// mutation exists per (Kind, LocalID); queue position is assigned at first
// insertion and survives in-place replacement.
type Mutation struct {
	ID         string          `json:"id"`
	Kind       EntityKind      `json:"entityKind"`
	LocalID    string          `json:"entityLocalId"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
}

// NewMutation builds a mutation with a fresh id and timestamp.
// Payload is nil for deletes.
func NewMutation(kind EntityKind, localID string, action Action, payload json.RawMessage) Mutation {
	return Mutation{
		ID:         NewToken(),
		Kind:       kind,
		LocalID:    localID,
		Action:     action,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
}

// IDMapping pairs a locally-generated entity id with the id the remote
// assigned on create. Mappings are never deleted; a late mutation for a
// removed entity must still translate.
type IDMapping struct {
	Kind      EntityKind `json:"entityKind"`
	LocalID   string     `json:"localId"`
	RemoteID  string     `json:"remoteId"`
	CreatedAt time.Time  `json:"createdAt"`
}
