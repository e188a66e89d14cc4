package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/remote"
)

// Snapshot is the remote's current state translated to local form, keyed by
// local id. The caller installs it wholesale in place of the corresponding
// local entities.
type Snapshot struct {
	Profiles map[string]models.Profile
	Workouts map[string]models.WorkoutSession
}

// Pull fetches every entity the account owns, parents before children, and
// translates remote records back to local identity. An entity this client
// has never seen gets a fresh local id registered in the map. The pending
// mutation queue is left untouched: offline edits re-apply on the next
// drain. A successful pull advances the sync time.
func (e *Engine) Pull(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Profiles: make(map[string]models.Profile),
		Workouts: make(map[string]models.WorkoutSession),
	}

	for _, kind := range models.KindsTopological() {
		objs, err := e.remote.List(ctx, kind, e.owner)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		for _, obj := range objs {
			localID, err := e.adoptRemote(kind, obj.ID)
			if err != nil {
				return nil, err
			}
			switch kind {
			case models.KindProfile:
				var p models.Profile
				if err := json.Unmarshal(obj.Data, &p); err != nil {
					return nil, fmt.Errorf("decode profile %s: %w", obj.ID, err)
				}
				snap.Profiles[localID] = p
			case models.KindWorkoutSession:
				w, err := e.decodeWorkout(obj)
				if err != nil {
					return nil, err
				}
				snap.Workouts[localID] = w
			}
		}
	}

	if err := e.state.SetLastSyncAt(time.Now()); err != nil {
		return nil, fmt.Errorf("record sync time: %w", err)
	}
	slog.Debug("sync: pulled", "profiles", len(snap.Profiles), "workouts", len(snap.Workouts))
	return snap, nil
}

// adoptRemote resolves a remote id to its local id, synthesizing and
// registering a fresh one for entities first created elsewhere.
func (e *Engine) adoptRemote(kind models.EntityKind, remoteID string) (string, error) {
	if localID, ok := e.maps.LocalID(kind, remoteID); ok {
		return localID, nil
	}
	localID := models.NewLocalID()
	if err := e.maps.Put(kind, localID, remoteID); err != nil {
		return "", err
	}
	return localID, nil
}

// decodeWorkout translates the wire form's parent reference back to a local
// id, adopting the parent first when it is unknown here.
func (e *Engine) decodeWorkout(obj remote.Object) (models.WorkoutSession, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj.Data, &fields); err != nil {
		return models.WorkoutSession{}, fmt.Errorf("decode workout %s: %w", obj.ID, err)
	}

	ref := models.KindWorkoutSession.ParentRef()
	var parentLocal string
	if raw, ok := fields[ref.RemoteKey]; ok {
		var parentRemote string
		if err := json.Unmarshal(raw, &parentRemote); err != nil {
			return models.WorkoutSession{}, fmt.Errorf("decode workout %s parent ref: %w", obj.ID, err)
		}
		if parentRemote != "" {
			var err error
			parentLocal, err = e.adoptRemote(ref.Kind, parentRemote)
			if err != nil {
				return models.WorkoutSession{}, err
			}
		}
		delete(fields, ref.RemoteKey)
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return models.WorkoutSession{}, err
	}
	var w models.WorkoutSession
	if err := json.Unmarshal(data, &w); err != nil {
		return models.WorkoutSession{}, fmt.Errorf("decode workout %s: %w", obj.ID, err)
	}
	w.ProfileLocalID = parentLocal
	return w, nil
}
