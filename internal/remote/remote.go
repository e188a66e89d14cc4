// Package remote defines the narrow contract the sync engine holds against
// the remote data store, plus the production HTTP implementation.
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/caleb/fittrack/internal/models"
)

// Sentinel errors classifying remote failures. Every error returned by a
// Store wraps exactly one of these; the engine matches with errors.Is.
var (
	// ErrAuthRequired halts a sync pass: credentials are missing, expired
	// or rejected. The queue is left untouched.
	ErrAuthRequired = errors.New("authentication required")

	// ErrUnavailable marks transient failures worth retrying: transport
	// errors, timeouts, rate limits, server errors.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrInvalid marks payloads the remote permanently rejects.
	ErrInvalid = errors.New("invalid entity")

	// ErrConflict marks writes the remote refuses due to conflicting state.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks operations against a remote id the remote no
	// longer knows.
	ErrNotFound = errors.New("not found")
)

// IsTransient reports whether err is worth retrying on a later pass.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Object is one entity as the remote returns it: the remote id plus the
// wire-form document.
type Object struct {
	ID   string
	Data json.RawMessage
}

// Store is the remote data store. Create assigns and returns the remote id.
// Update has upsert semantics for workout sessions, keyed on
// (profileId, exerciseId, date), so replaying an already-applied create as
// an update cannot duplicate the entity.
type Store interface {
	Create(ctx context.Context, kind models.EntityKind, owner string, payload json.RawMessage) (string, error)
	Update(ctx context.Context, kind models.EntityKind, owner, remoteID string, payload json.RawMessage) error
	Delete(ctx context.Context, kind models.EntityKind, owner, remoteID string) error
	List(ctx context.Context, kind models.EntityKind, owner string) ([]Object, error)
}

// Collection returns the REST collection name for an entity kind.
func Collection(kind models.EntityKind) string {
	switch kind {
	case models.KindProfile:
		return "profiles"
	case models.KindWorkoutSession:
		return "workouts"
	default:
		return string(kind)
	}
}
