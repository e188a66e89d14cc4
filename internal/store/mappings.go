package store

import (
	"github.com/caleb/fittrack/internal/models"
)

// IDMappings exposes the id_mappings table as the identifier map storage.
// Rows are append-only; the uniqueness of both id columns per kind is
// enforced by the schema as a last line of defense.
type IDMappings struct {
	db *DB
}

// IDMappings returns the identifier mapping storage.
func (db *DB) IDMappings() *IDMappings {
	return &IDMappings{db: db}
}

// Insert persists a new local/remote pair.
func (s *IDMappings) Insert(m models.IDMapping) error {
	return s.db.withWriteLock(func() error {
		_, err := s.db.conn.Exec(`
			INSERT INTO id_mappings (entity_kind, local_id, remote_id, created_at)
			VALUES (?, ?, ?, ?)
		`, m.Kind, m.LocalID, m.RemoteID, m.CreatedAt)
		return err
	})
}

// All returns every stored mapping.
func (s *IDMappings) All() ([]models.IDMapping, error) {
	rows, err := s.db.conn.Query(`
		SELECT entity_kind, local_id, remote_id, created_at FROM id_mappings
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []models.IDMapping
	for rows.Next() {
		var m models.IDMapping
		if err := rows.Scan(&m.Kind, &m.LocalID, &m.RemoteID, &m.CreatedAt); err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	return all, rows.Err()
}
