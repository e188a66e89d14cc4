package models

// Profile is a tracked person: the parent entity every workout session
// belongs to.
type Profile struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight,omitempty"`
}

// SetEntry is one set within a workout session.
type SetEntry struct {
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight,omitempty"`
}

// WorkoutSession is one logged exercise on one date for a profile.
// ProfileLocalID carries the parent's local id until sync translates it.
type WorkoutSession struct {
	ProfileLocalID string     `json:"profileLocalId"`
	ExerciseID     string     `json:"exerciseId"`
	Date           string     `json:"date"`
	Sets           []SetEntry `json:"sets,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}
