package sync

import (
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

// ErrRemapped is returned when a Put would bind an already-mapped identifier
// to a different counterpart.
var ErrRemapped = errors.New("identifier already mapped")

type mapKey struct {
	kind models.EntityKind
	id   string
}

// Mappings is the bidirectional local↔remote identifier map. Reads are
// served from an in-memory cache loaded at construction; writes go through
// to the store. Entries are never deleted, so a late mutation for a removed
// entity still translates.
type Mappings struct {
	store MappingStore

	mu       gosync.RWMutex
	byLocal  map[mapKey]string
	byRemote map[mapKey]string
}

// LoadMappings builds the map cache from the store.
func LoadMappings(store MappingStore) (*Mappings, error) {
	all, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("load id mappings: %w", err)
	}
	m := &Mappings{
		store:    store,
		byLocal:  make(map[mapKey]string, len(all)),
		byRemote: make(map[mapKey]string, len(all)),
	}
	for _, e := range all {
		m.byLocal[mapKey{e.Kind, e.LocalID}] = e.RemoteID
		m.byRemote[mapKey{e.Kind, e.RemoteID}] = e.LocalID
	}
	return m, nil
}

// Put registers a (localId, remoteId) pair. Re-registering the identical
// pair is a no-op. Binding either id to a different counterpart is a logic
// error: it is rejected with ErrRemapped and the map is left unchanged.
func (m *Mappings) Put(kind models.EntityKind, localID, remoteID string) error {
	if localID == "" || remoteID == "" {
		return errors.New("id mapping needs both ids")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.byLocal[mapKey{kind, localID}]; ok {
		if cur == remoteID {
			return nil
		}
		slog.Error("id map: remap rejected", "kind", kind, "localId", localID, "mapped", cur, "offered", remoteID)
		return fmt.Errorf("%w: %s %s already bound to %s", ErrRemapped, kind, localID, cur)
	}
	if cur, ok := m.byRemote[mapKey{kind, remoteID}]; ok {
		slog.Error("id map: remap rejected", "kind", kind, "remoteId", remoteID, "mapped", cur, "offered", localID)
		return fmt.Errorf("%w: %s %s already bound to %s", ErrRemapped, kind, remoteID, cur)
	}

	entry := models.IDMapping{Kind: kind, LocalID: localID, RemoteID: remoteID, CreatedAt: time.Now()}
	if err := m.store.Insert(entry); err != nil {
		return fmt.Errorf("persist id mapping: %w", err)
	}
	m.byLocal[mapKey{kind, localID}] = remoteID
	m.byRemote[mapKey{kind, remoteID}] = localID
	return nil
}

// RemoteID returns the remote id mapped to a local id.
func (m *Mappings) RemoteID(kind models.EntityKind, localID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLocal[mapKey{kind, localID}]
	return id, ok
}

// LocalID returns the local id mapped to a remote id.
func (m *Mappings) LocalID(kind models.EntityKind, remoteID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRemote[mapKey{kind, remoteID}]
	return id, ok
}

// Len returns the number of mapped pairs.
func (m *Mappings) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byLocal)
}
