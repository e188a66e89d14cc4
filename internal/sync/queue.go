package sync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/caleb/fittrack/internal/models"
)

// Queue is the durable mutation outbox. It holds at most one pending record
// per (kind, localId): a mutation for an entity already queued collapses into
// the existing record instead of appending.
type Queue struct {
	store QueueStore
	maps  *Mappings
}

// NewQueue creates a queue over the given store. The identifier map decides
// whether a delete needs a remote call at all.
func NewQueue(store QueueStore, maps *Mappings) *Queue {
	return &Queue{store: store, maps: maps}
}

// Enqueue records a local mutation:
//   - a delete of an entity the remote never saw removes any pending record
//     for it and queues nothing;
//   - a first mutation for an entity appends at the tail;
//   - otherwise the pending record is replaced in place, keeping its queue
//     position. A pending create followed by an update stays a create with
//     the merged payload. Replacement adopts the new record's id and resets
//     the retry count.
func (q *Queue) Enqueue(m models.Mutation) error {
	if err := validate(m); err != nil {
		return err
	}

	existing, err := q.store.Lookup(m.Kind, m.LocalID)
	if err != nil {
		return fmt.Errorf("lookup pending: %w", err)
	}

	if m.Action == models.ActionDelete {
		if _, mapped := q.maps.RemoteID(m.Kind, m.LocalID); !mapped {
			if existing != nil {
				return q.store.Remove(existing.ID)
			}
			return nil
		}
	}

	if existing != nil && existing.Action == models.ActionCreate && m.Action == models.ActionUpdate {
		merged, err := mergePayloads(existing.Payload, m.Payload)
		if err != nil {
			return err
		}
		m.Action = models.ActionCreate
		m.Payload = merged
	}

	m.RetryCount = 0
	return q.store.Put(m)
}

// EnqueueFront queues m ahead of every pending record, used to schedule a
// synthesized parent create before its dependents. An entity that already
// has a pending record is left as is.
func (q *Queue) EnqueueFront(m models.Mutation) error {
	if err := validate(m); err != nil {
		return err
	}
	m.RetryCount = 0
	return q.store.PutFront(m)
}

// Pending returns the drain snapshot: every pending mutation in queue order.
// Records stay queued until the engine removes them on a terminal outcome.
func (q *Queue) Pending() ([]models.Mutation, error) {
	return q.store.Pending()
}

// Lookup returns the pending mutation for an entity, or nil.
func (q *Queue) Lookup(kind models.EntityKind, localID string) (*models.Mutation, error) {
	return q.store.Lookup(kind, localID)
}

// Remove drops the record with the given mutation id.
func (q *Queue) Remove(id string) error {
	return q.store.Remove(id)
}

// Bump increments the retry count for the record with the given id and
// returns the new count, or 0 if the record was replaced or removed.
func (q *Queue) Bump(id string) (int, error) {
	return q.store.Bump(id)
}

// Count returns the number of pending mutations.
func (q *Queue) Count() (int, error) {
	return q.store.Count()
}

func validate(m models.Mutation) error {
	if m.ID == "" {
		return errors.New("mutation has no id")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", m.Kind)
	}
	if !m.Action.Valid() {
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if m.LocalID == "" {
		return errors.New("mutation has no local id")
	}
	if m.Action != models.ActionDelete && len(m.Payload) == 0 {
		return fmt.Errorf("%s of %s has no payload", m.Action, m.Kind)
	}
	return nil
}

// mergePayloads overlays the fields of next onto prev, a shallow JSON object
// merge: last write wins per field.
func mergePayloads(prev, next json.RawMessage) (json.RawMessage, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(prev, &base); err != nil {
		return nil, fmt.Errorf("merge pending payload: %w", err)
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(next, &patch); err != nil {
		return nil, fmt.Errorf("merge new payload: %w", err)
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
