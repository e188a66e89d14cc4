package syncharness

import (
	"testing"

	"github.com/caleb/fittrack/internal/models"
)

func TestQueueSurvivesRestart(t *testing.T) {
	h := NewHarness(t, 1)

	pid := h.AddProfile("client-A", "Arun", 70)
	h.LogWorkout("client-A", pid, "squat", "2026-08-21",
		[]models.SetEntry{{Reps: 5, Weight: 100}})
	if got := h.Pending("client-A"); got != 2 {
		t.Fatalf("pending before restart: got %d, want 2", got)
	}

	h.Restart("client-A")

	if got := h.Pending("client-A"); got != 2 {
		t.Fatalf("pending after restart: got %d, want 2", got)
	}

	h.Connect("client-A")
	rep := h.Drain("client-A")

	if rep.Applied != 2 {
		t.Fatalf("applied: got %d, want 2", rep.Applied)
	}
	if got := h.ServerCount("profiles"); got != 1 {
		t.Fatalf("server profiles: got %d, want 1", got)
	}
	if got := h.ServerCount("workouts"); got != 1 {
		t.Fatalf("server workouts: got %d, want 1", got)
	}

	// The local rows rode out the restart as well.
	profiles, err := h.Clients["client-A"].DB.ListProfiles()
	if err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Profile.Name != "Arun" {
		t.Fatalf("local profiles after restart: got %+v", profiles)
	}
}

func TestMappingsSurviveRestart(t *testing.T) {
	h := NewHarness(t, 1)

	pid := h.AddProfile("client-A", "Arun", 70)
	h.Connect("client-A")
	if rep := h.Drain("client-A"); rep.Applied != 1 {
		t.Fatalf("applied: got %d, want 1", rep.Applied)
	}
	rid := h.RemoteID("client-A", models.KindProfile, pid)
	if rid == "" {
		t.Fatalf("profile should be mapped after the drain")
	}

	h.Restart("client-A")
	h.Connect("client-A")

	// The update records online and drains immediately. With the mapping
	// reloaded from disk it lands as a PUT on the existing row, not a
	// second create.
	h.SetWeight("client-A", pid, 72)

	if got := h.RemoteID("client-A", models.KindProfile, pid); got != rid {
		t.Fatalf("remote id after restart: got %s, want %s", got, rid)
	}
	docs := h.ServerDocs("profiles")
	if len(docs) != 1 {
		t.Fatalf("server profiles: got %d, want 1", len(docs))
	}
	if got := docs[0]["weight"]; got != 72.0 {
		t.Fatalf("server weight: got %v, want 72", got)
	}
}

func TestSyncTimeSurvivesRestart(t *testing.T) {
	h := NewHarness(t, 1)

	h.AddProfile("client-A", "Arun", 70)
	h.Connect("client-A")
	h.Drain("client-A")

	before := h.LastSyncAt("client-A")
	if before == nil {
		t.Fatalf("sync time should be set after the drain")
	}

	h.Restart("client-A")

	after := h.LastSyncAt("client-A")
	if after == nil {
		t.Fatalf("sync time should survive a restart")
	}
	if !after.Equal(*before) {
		t.Fatalf("sync time after restart: got %v, want %v", after, before)
	}
}
