package sync

import (
	"encoding/json"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

// memQueue is an in-memory QueueStore with the same in-place replacement
// semantics as the SQLite store.
type memQueue struct {
	mu      gosync.Mutex
	records []models.Mutation
}

func (q *memQueue) Put(m models.Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.records {
		if r.Kind == m.Kind && r.LocalID == m.LocalID {
			q.records[i] = m
			return nil
		}
	}
	q.records = append(q.records, m)
	return nil
}

func (q *memQueue) PutFront(m models.Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.records {
		if r.Kind == m.Kind && r.LocalID == m.LocalID {
			return nil
		}
	}
	q.records = append([]models.Mutation{m}, q.records...)
	return nil
}

func (q *memQueue) Lookup(kind models.EntityKind, localID string) (*models.Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.records {
		if r.Kind == kind && r.LocalID == localID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *memQueue) Pending() ([]models.Mutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Mutation(nil), q.records...), nil
}

func (q *memQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.records {
		if r.ID == id {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) Bump(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.records {
		if r.ID == id {
			q.records[i].RetryCount++
			return q.records[i].RetryCount, nil
		}
	}
	return 0, nil
}

func (q *memQueue) Count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records), nil
}

// memMappings is an in-memory MappingStore. Set failErr to make Insert fail.
type memMappings struct {
	mu      gosync.Mutex
	entries []models.IDMapping
	inserts int
	failErr error
}

func (s *memMappings) Insert(m models.IDMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.inserts++
	s.entries = append(s.entries, m)
	return nil
}

func (s *memMappings) All() ([]models.IDMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.IDMapping(nil), s.entries...), nil
}

// memState is an in-memory StateStore.
type memState struct {
	mu   gosync.Mutex
	last *time.Time
}

func (s *memState) LastSyncAt() (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, nil
	}
	t := *s.last
	return &t, nil
}

func (s *memState) SetLastSyncAt(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &t
	return nil
}

// memEntities is an in-memory EntitySource keyed by kind and local id.
type memEntities map[string]json.RawMessage

func entityKey(kind models.EntityKind, localID string) string {
	return fmt.Sprintf("%s/%s", kind, localID)
}

func (s memEntities) EntitySnapshot(kind models.EntityKind, localID string) (json.RawMessage, error) {
	return s[entityKey(kind, localID)], nil
}

func newTestMappings(t *testing.T) *Mappings {
	t.Helper()
	maps, err := LoadMappings(&memMappings{})
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}
	return maps
}
