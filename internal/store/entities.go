package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

// ProfileRecord is a stored profile with its local identity and timestamps.
type ProfileRecord struct {
	LocalID   string
	Profile   models.Profile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkoutRecord is a stored workout session with its local identity and
// timestamps.
type WorkoutRecord struct {
	LocalID   string
	Workout   models.WorkoutSession
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateProfile inserts a profile under its local id.
func (db *DB) CreateProfile(localID string, p models.Profile) error {
	return db.withWriteLock(func() error {
		now := time.Now()
		_, err := db.conn.Exec(`
			INSERT INTO profiles (local_id, name, weight, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, localID, p.Name, p.Weight, now, now)
		return err
	})
}

// UpdateProfile overwrites a profile's fields.
func (db *DB) UpdateProfile(localID string, p models.Profile) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			UPDATE profiles SET name = ?, weight = ?, updated_at = ? WHERE local_id = ?
		`, p.Name, p.Weight, time.Now(), localID)
		return err
	})
}

// GetProfile returns a profile, or nil when none exists under the local id.
func (db *DB) GetProfile(localID string) (*ProfileRecord, error) {
	var rec ProfileRecord
	err := db.conn.QueryRow(`
		SELECT local_id, name, weight, created_at, updated_at FROM profiles WHERE local_id = ?
	`, localID).Scan(&rec.LocalID, &rec.Profile.Name, &rec.Profile.Weight, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListProfiles returns all profiles ordered by name.
func (db *DB) ListProfiles() ([]ProfileRecord, error) {
	rows, err := db.conn.Query(`
		SELECT local_id, name, weight, created_at, updated_at FROM profiles ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []ProfileRecord
	for rows.Next() {
		var rec ProfileRecord
		if err := rows.Scan(&rec.LocalID, &rec.Profile.Name, &rec.Profile.Weight, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, rec)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes a profile row.
func (db *DB) DeleteProfile(localID string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM profiles WHERE local_id = ?`, localID)
		return err
	})
}

// CreateWorkout inserts a workout session under its local id.
func (db *DB) CreateWorkout(localID string, w models.WorkoutSession) error {
	return db.withWriteLock(func() error {
		sets, err := marshalSets(w.Sets)
		if err != nil {
			return err
		}
		now := time.Now()
		_, err = db.conn.Exec(`
			INSERT INTO workout_sessions (local_id, profile_local_id, exercise_id, date, sets, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, localID, w.ProfileLocalID, w.ExerciseID, w.Date, sets, w.Notes, now, now)
		return err
	})
}

// UpdateWorkout overwrites a workout session's fields.
func (db *DB) UpdateWorkout(localID string, w models.WorkoutSession) error {
	return db.withWriteLock(func() error {
		sets, err := marshalSets(w.Sets)
		if err != nil {
			return err
		}
		_, err = db.conn.Exec(`
			UPDATE workout_sessions SET profile_local_id = ?, exercise_id = ?, date = ?, sets = ?, notes = ?, updated_at = ?
			WHERE local_id = ?
		`, w.ProfileLocalID, w.ExerciseID, w.Date, sets, w.Notes, time.Now(), localID)
		return err
	})
}

// GetWorkout returns a workout session, or nil when none exists under the
// local id.
func (db *DB) GetWorkout(localID string) (*WorkoutRecord, error) {
	row := db.conn.QueryRow(`
		SELECT local_id, profile_local_id, exercise_id, date, sets, notes, created_at, updated_at
		FROM workout_sessions WHERE local_id = ?
	`, localID)

	rec, err := scanWorkout(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListWorkouts returns workout sessions ordered by date, newest first.
// An empty profileLocalID lists every profile's sessions.
func (db *DB) ListWorkouts(profileLocalID string) ([]WorkoutRecord, error) {
	query := `
		SELECT local_id, profile_local_id, exercise_id, date, sets, notes, created_at, updated_at
		FROM workout_sessions`
	var args []any
	if profileLocalID != "" {
		query += ` WHERE profile_local_id = ?`
		args = append(args, profileLocalID)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workouts []WorkoutRecord
	for rows.Next() {
		rec, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, *rec)
	}
	return workouts, rows.Err()
}

// DeleteWorkout removes a workout session row.
func (db *DB) DeleteWorkout(localID string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM workout_sessions WHERE local_id = ?`, localID)
		return err
	})
}

// ReplaceEntities installs a pulled snapshot wholesale: every profile and
// workout row is replaced by the snapshot's content in one transaction.
func (db *DB) ReplaceEntities(profiles map[string]models.Profile, workouts map[string]models.WorkoutSession) error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM workout_sessions`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM profiles`); err != nil {
			return err
		}

		now := time.Now()
		for localID, p := range profiles {
			if _, err := tx.Exec(`
				INSERT INTO profiles (local_id, name, weight, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, localID, p.Name, p.Weight, now, now); err != nil {
				return err
			}
		}
		for localID, w := range workouts {
			sets, err := marshalSets(w.Sets)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO workout_sessions (local_id, profile_local_id, exercise_id, date, sets, notes, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, localID, w.ProfileLocalID, w.ExerciseID, w.Date, sets, w.Notes, now, now); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

// EntitySource adapts the entity tables to the snapshot reads the sync
// engine uses when it synthesizes a missing parent create.
type EntitySource struct {
	db *DB
}

// EntitySource returns the local entity reader for the sync engine.
func (db *DB) EntitySource() *EntitySource {
	return &EntitySource{db: db}
}

// EntitySnapshot returns the current payload for an entity, or nil when it
// does not exist locally.
func (s *EntitySource) EntitySnapshot(kind models.EntityKind, localID string) (json.RawMessage, error) {
	switch kind {
	case models.KindProfile:
		rec, err := s.db.GetProfile(localID)
		if err != nil || rec == nil {
			return nil, err
		}
		return json.Marshal(rec.Profile)
	case models.KindWorkoutSession:
		rec, err := s.db.GetWorkout(localID)
		if err != nil || rec == nil {
			return nil, err
		}
		return json.Marshal(rec.Workout)
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

func scanWorkout(row rowScanner) (*WorkoutRecord, error) {
	var rec WorkoutRecord
	var sets string
	err := row.Scan(&rec.LocalID, &rec.Workout.ProfileLocalID, &rec.Workout.ExerciseID,
		&rec.Workout.Date, &sets, &rec.Workout.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sets != "" {
		if err := json.Unmarshal([]byte(sets), &rec.Workout.Sets); err != nil {
			return nil, fmt.Errorf("decode sets for %s: %w", rec.LocalID, err)
		}
	}
	return &rec, nil
}

func marshalSets(sets []models.SetEntry) (string, error) {
	if len(sets) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(sets)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
