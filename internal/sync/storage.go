package sync

import (
	"encoding/json"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

// QueueStore persists pending mutations in insertion order. Implementations
// must survive process restart; tests substitute an in-memory fake.
type QueueStore interface {
	// Put appends m at the tail, or replaces the pending record for
	// (m.Kind, m.LocalID) in place, keeping that record's queue position.
	Put(m models.Mutation) error
	// PutFront inserts m ahead of every pending record. If a record is
	// already pending for the entity, PutFront is a no-op.
	PutFront(m models.Mutation) error
	// Lookup returns the pending mutation for the entity, or nil.
	Lookup(kind models.EntityKind, localID string) (*models.Mutation, error)
	// Pending returns all pending mutations in queue order.
	Pending() ([]models.Mutation, error)
	// Remove deletes the record with the given mutation id, if present.
	Remove(id string) error
	// Bump increments the retry count of the record with the given id and
	// returns the new count, or 0 if no such record remains.
	Bump(id string) (int, error)
	// Count returns the number of pending mutations.
	Count() (int, error)
}

// MappingStore persists identifier map entries.
type MappingStore interface {
	Insert(m models.IDMapping) error
	All() ([]models.IDMapping, error)
}

// StateStore persists sync bookkeeping.
type StateStore interface {
	LastSyncAt() (*time.Time, error)
	SetLastSyncAt(t time.Time) error
}

// EntitySource reads current local entity state, used to synthesize a parent
// create when a child mutation is queued without one. A (nil, nil) return
// means the entity does not exist locally.
type EntitySource interface {
	EntitySnapshot(kind models.EntityKind, localID string) (json.RawMessage, error)
}
