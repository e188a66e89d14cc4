package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

func TestMappings_PutIsIdempotent(t *testing.T) {
	store := &memMappings{}
	maps, err := LoadMappings(store)
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}

	if err := maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("repeat put: %v", err)
	}

	if store.inserts != 1 {
		t.Fatalf("store inserts: got %d, want 1", store.inserts)
	}
	if maps.Len() != 1 {
		t.Fatalf("mapped pairs: got %d, want 1", maps.Len())
	}
}

func TestMappings_RemapRejected(t *testing.T) {
	maps := newTestMappings(t)
	if err := maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := maps.Put(models.KindProfile, "L1", "R-2"); !errors.Is(err, ErrRemapped) {
		t.Fatalf("rebinding local id: got %v, want ErrRemapped", err)
	}
	if err := maps.Put(models.KindProfile, "L2", "R-1"); !errors.Is(err, ErrRemapped) {
		t.Fatalf("rebinding remote id: got %v, want ErrRemapped", err)
	}

	if id, _ := maps.RemoteID(models.KindProfile, "L1"); id != "R-1" {
		t.Fatalf("mapping changed by rejected put: got %q", id)
	}
	if maps.Len() != 1 {
		t.Fatalf("mapped pairs: got %d, want 1", maps.Len())
	}
}

func TestMappings_SameIDsAcrossKinds(t *testing.T) {
	maps := newTestMappings(t)
	if err := maps.Put(models.KindProfile, "L1", "R-1"); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	// The same id strings under a different kind are a distinct pair.
	if err := maps.Put(models.KindWorkoutSession, "L1", "R-1"); err != nil {
		t.Fatalf("put workout: %v", err)
	}
	if maps.Len() != 2 {
		t.Fatalf("mapped pairs: got %d, want 2", maps.Len())
	}
}

func TestMappings_LoadsPersistedEntries(t *testing.T) {
	store := &memMappings{entries: []models.IDMapping{
		{Kind: models.KindProfile, LocalID: "L1", RemoteID: "R-1", CreatedAt: time.Now()},
		{Kind: models.KindWorkoutSession, LocalID: "W1", RemoteID: "R-w1", CreatedAt: time.Now()},
	}}
	maps, err := LoadMappings(store)
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}

	if id, ok := maps.RemoteID(models.KindProfile, "L1"); !ok || id != "R-1" {
		t.Fatalf("remote id: got %q, %v", id, ok)
	}
	if id, ok := maps.LocalID(models.KindWorkoutSession, "R-w1"); !ok || id != "W1" {
		t.Fatalf("local id: got %q, %v", id, ok)
	}
	if _, ok := maps.RemoteID(models.KindProfile, "L-unknown"); ok {
		t.Fatal("unknown local id should not resolve")
	}
}

func TestMappings_PersistFailureLeavesCacheUnchanged(t *testing.T) {
	store := &memMappings{failErr: errors.New("disk full")}
	maps, err := LoadMappings(store)
	if err != nil {
		t.Fatalf("load mappings: %v", err)
	}

	if err := maps.Put(models.KindProfile, "L1", "R-1"); err == nil {
		t.Fatal("expected persist error")
	}
	if _, ok := maps.RemoteID(models.KindProfile, "L1"); ok {
		t.Fatal("failed put should not be cached")
	}
}

func TestMappings_RejectsEmptyIDs(t *testing.T) {
	maps := newTestMappings(t)
	if err := maps.Put(models.KindProfile, "", "R-1"); err == nil {
		t.Fatal("expected error for empty local id")
	}
	if err := maps.Put(models.KindProfile, "L1", ""); err == nil {
		t.Fatal("expected error for empty remote id")
	}
}
