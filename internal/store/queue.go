package store

import (
	"database/sql"
	"encoding/json"

	"github.com/caleb/fittrack/internal/models"
)

// MutationQueue exposes the mutations table as the queue storage the sync
// engine drains. A row keeps its position when it is replaced in place;
// new rows go after the current tail, synthesized parents before the head.
type MutationQueue struct {
	db *DB
}

// MutationQueue returns the durable mutation outbox.
func (db *DB) MutationQueue() *MutationQueue {
	return &MutationQueue{db: db}
}

// Put appends m at the tail, or replaces the pending row for its entity
// keeping that row's position.
func (q *MutationQueue) Put(m models.Mutation) error {
	return q.db.withWriteLock(func() error {
		res, err := q.db.conn.Exec(`
			UPDATE mutations SET id = ?, action = ?, payload = ?, enqueued_at = ?, retry_count = ?
			WHERE entity_kind = ? AND entity_local_id = ?
		`, m.ID, m.Action, string(m.Payload), m.EnqueuedAt, m.RetryCount, m.Kind, m.LocalID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		_, err = q.db.conn.Exec(`
			INSERT INTO mutations (id, entity_kind, entity_local_id, action, payload, enqueued_at, retry_count, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM mutations))
		`, m.ID, m.Kind, m.LocalID, m.Action, string(m.Payload), m.EnqueuedAt, m.RetryCount)
		return err
	})
}

// PutFront inserts m ahead of every pending row. If the entity already has
// a pending row, PutFront leaves the queue unchanged.
func (q *MutationQueue) PutFront(m models.Mutation) error {
	return q.db.withWriteLock(func() error {
		var pending int
		err := q.db.conn.QueryRow(`
			SELECT COUNT(*) FROM mutations WHERE entity_kind = ? AND entity_local_id = ?
		`, m.Kind, m.LocalID).Scan(&pending)
		if err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}

		_, err = q.db.conn.Exec(`
			INSERT INTO mutations (id, entity_kind, entity_local_id, action, payload, enqueued_at, retry_count, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MIN(position), 0) - 1 FROM mutations))
		`, m.ID, m.Kind, m.LocalID, m.Action, string(m.Payload), m.EnqueuedAt, m.RetryCount)
		return err
	})
}

// Lookup returns the pending mutation for an entity, or nil.
func (q *MutationQueue) Lookup(kind models.EntityKind, localID string) (*models.Mutation, error) {
	row := q.db.conn.QueryRow(`
		SELECT id, entity_kind, entity_local_id, action, payload, enqueued_at, retry_count
		FROM mutations WHERE entity_kind = ? AND entity_local_id = ?
	`, kind, localID)

	m, err := scanMutation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Pending returns all pending mutations in queue order.
func (q *MutationQueue) Pending() ([]models.Mutation, error) {
	rows, err := q.db.conn.Query(`
		SELECT id, entity_kind, entity_local_id, action, payload, enqueued_at, retry_count
		FROM mutations ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []models.Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *m)
	}
	return pending, rows.Err()
}

// Remove deletes the row with the given mutation id, if present.
func (q *MutationQueue) Remove(id string) error {
	return q.db.withWriteLock(func() error {
		_, err := q.db.conn.Exec(`DELETE FROM mutations WHERE id = ?`, id)
		return err
	})
}

// Bump increments the retry count of the row with the given mutation id and
// returns the new count. A row replaced or removed since the drain snapshot
// yields 0.
func (q *MutationQueue) Bump(id string) (int, error) {
	var count int
	err := q.db.withWriteLock(func() error {
		if _, err := q.db.conn.Exec(`UPDATE mutations SET retry_count = retry_count + 1 WHERE id = ?`, id); err != nil {
			return err
		}
		err := q.db.conn.QueryRow(`SELECT retry_count FROM mutations WHERE id = ?`, id).Scan(&count)
		if err == sql.ErrNoRows {
			count = 0
			return nil
		}
		return err
	})
	return count, err
}

// Count returns the number of pending mutations.
func (q *MutationQueue) Count() (int, error) {
	var n int
	err := q.db.conn.QueryRow(`SELECT COUNT(*) FROM mutations`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (*models.Mutation, error) {
	var m models.Mutation
	var payload string
	if err := row.Scan(&m.ID, &m.Kind, &m.LocalID, &m.Action, &payload, &m.EnqueuedAt, &m.RetryCount); err != nil {
		return nil, err
	}
	if payload != "" {
		m.Payload = json.RawMessage(payload)
	}
	return &m, nil
}
