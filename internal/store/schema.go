package store

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Profiles table
CREATE TABLE IF NOT EXISTS profiles (
    local_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    weight REAL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Workout sessions table
CREATE TABLE IF NOT EXISTS workout_sessions (
    local_id TEXT PRIMARY KEY,
    profile_local_id TEXT NOT NULL,
    exercise_id TEXT NOT NULL,
    date TEXT NOT NULL,
    sets TEXT DEFAULT '[]',
    notes TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (profile_local_id) REFERENCES profiles(local_id)
);

-- Pending mutations table (the sync outbox)
CREATE TABLE IF NOT EXISTS mutations (
    id TEXT PRIMARY KEY,
    entity_kind TEXT NOT NULL,
    entity_local_id TEXT NOT NULL,
    action TEXT NOT NULL,
    payload TEXT DEFAULT '',
    enqueued_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    retry_count INTEGER DEFAULT 0,
    position INTEGER NOT NULL,
    UNIQUE(entity_kind, entity_local_id)
);

-- Identifier mappings table
CREATE TABLE IF NOT EXISTS id_mappings (
    entity_kind TEXT NOT NULL,
    local_id TEXT NOT NULL,
    remote_id TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (entity_kind, local_id),
    UNIQUE(entity_kind, remote_id)
);

-- Sync state table for bookkeeping values
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Schema info table for version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_workouts_profile ON workout_sessions(profile_local_id);
CREATE INDEX IF NOT EXISTS idx_workouts_date ON workout_sessions(date);
CREATE INDEX IF NOT EXISTS idx_mutations_position ON mutations(position);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add notes column to workout sessions",
		SQL:         `ALTER TABLE workout_sessions ADD COLUMN notes TEXT DEFAULT '';`,
	},
}
