package store

import (
	"database/sql"
	"fmt"
	"time"
)

const lastSyncKey = "last_sync_at"

// SyncState exposes the sync_state table for sync bookkeeping values.
type SyncState struct {
	db *DB
}

// SyncState returns the sync bookkeeping storage.
func (db *DB) SyncState() *SyncState {
	return &SyncState{db: db}
}

// LastSyncAt returns the last successful sync time, or nil if this database
// has never completed a sync.
func (s *SyncState) LastSyncAt() (*time.Time, error) {
	var value string
	err := s.db.conn.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, lastSyncKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, fmt.Errorf("parse last sync time: %w", err)
	}
	return &t, nil
}

// SetLastSyncAt records the last successful sync time.
func (s *SyncState) SetLastSyncAt(t time.Time) error {
	return s.db.withWriteLock(func() error {
		_, err := s.db.conn.Exec(`INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)`,
			lastSyncKey, t.Format(time.RFC3339Nano))
		return err
	})
}
