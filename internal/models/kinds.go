package models

// EntityKind represents the canonical entity kinds subject to sync.
type EntityKind string

const (
	KindProfile        EntityKind = "profile"
	KindWorkoutSession EntityKind = "workout_session"
)

// Action represents the canonical mutation actions.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AllKinds returns all valid entity kinds.
func AllKinds() map[EntityKind]bool {
	return map[EntityKind]bool{
		KindProfile:        true,
		KindWorkoutSession: true,
	}
}

// AllActions returns all valid actions.
func AllActions() map[Action]bool {
	return map[Action]bool{
		ActionCreate: true,
		ActionUpdate: true,
		ActionDelete: true,
	}
}

// Valid checks whether the kind is one of the canonical entity kinds.
func (k EntityKind) Valid() bool {
	return AllKinds()[k]
}

// Valid checks whether the action is one of the canonical actions.
func (a Action) Valid() bool {
	return AllActions()[a]
}

// ParentRef describes a child kind's reference to its parent entity:
// the JSON field carrying the parent's local id, the kind of the parent,
// and the JSON field the remote expects the parent's remote id under.
type ParentRef struct {
	Kind      EntityKind
	LocalKey  string
	RemoteKey string
}

// ParentRef returns the parent reference for a child kind, or nil for
// kinds with no parent.
func (k EntityKind) ParentRef() *ParentRef {
	if k == KindWorkoutSession {
		return &ParentRef{Kind: KindProfile, LocalKey: "profileLocalId", RemoteKey: "profileId"}
	}
	return nil
}

// KindsTopological returns the entity kinds ordered parents before children,
// the order pull and drain logic must respect.
func KindsTopological() []EntityKind {
	return []EntityKind{KindProfile, KindWorkoutSession}
}
