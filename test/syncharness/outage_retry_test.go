package syncharness

import (
	"testing"

	"github.com/caleb/fittrack/internal/models"
	fitsync "github.com/caleb/fittrack/internal/sync"
)

func TestOutageRetriesUntilRestored(t *testing.T) {
	h := NewHarness(t, 1)

	pid := h.AddProfile("client-A", "Arun", 70)
	h.Connect("client-A")

	h.Server.SetOutage(true)
	rep := h.Drain("client-A")

	if rep.Retrying != 1 || rep.Applied != 0 {
		t.Fatalf("drain during outage: got %s, want 1 retrying", rep.Summary())
	}
	if got := h.Pending("client-A"); got != 1 {
		t.Fatalf("pending during outage: got %d, want 1", got)
	}

	rep = h.Drain("client-A")
	if rep.Retrying != 1 {
		t.Fatalf("second drain during outage: got %s, want 1 retrying", rep.Summary())
	}
	m, err := h.Clients["client-A"].Engine.Queue().Lookup(models.KindProfile, pid)
	if err != nil {
		t.Fatalf("lookup queued record: %v", err)
	}
	if m == nil || m.RetryCount != 2 {
		t.Fatalf("retry count after two failed drains: got %+v, want 2", m)
	}
	if h.LastSyncAt("client-A") != nil {
		t.Fatalf("sync time must not advance while the server is down")
	}

	h.Server.SetOutage(false)
	rep = h.Drain("client-A")

	if rep.Applied != 1 {
		t.Fatalf("drain after recovery: got %s, want 1 applied", rep.Summary())
	}
	if got := h.Pending("client-A"); got != 0 {
		t.Fatalf("pending after recovery: got %d, want 0", got)
	}
	if got := h.ServerCount("profiles"); got != 1 {
		t.Fatalf("server profiles: got %d, want 1", got)
	}
	if h.LastSyncAt("client-A") == nil {
		t.Fatalf("sync time should be set after the clean drain")
	}
}

func TestRetriesExhaustAfterCeiling(t *testing.T) {
	h := NewHarness(t, 1)

	h.AddProfile("client-A", "Arun", 70)
	h.Connect("client-A")
	h.Server.SetOutage(true)

	// Four drains leave the record retrying; the fifth exhausts it.
	var rep *fitsync.Report
	for i := 0; i < 5; i++ {
		rep = h.Drain("client-A")
	}

	if len(rep.Failures) != 1 {
		t.Fatalf("final drain: got %s, want 1 failure", rep.Summary())
	}
	if rep.Failures[0].Reason != fitsync.ReasonExhausted {
		t.Fatalf("failure reason: got %s, want %s", rep.Failures[0].Reason, fitsync.ReasonExhausted)
	}
	if got := h.Pending("client-A"); got != 0 {
		t.Fatalf("pending after exhaustion: got %d, want 0", got)
	}

	// The record is gone for good: recovery does not resurrect it.
	h.Server.SetOutage(false)
	rep = h.Drain("client-A")
	if !rep.Empty() {
		t.Fatalf("drain after exhaustion: got %s, want nothing to do", rep.Summary())
	}
	if got := h.ServerCount("profiles"); got != 0 {
		t.Fatalf("server profiles: got %d, want 0", got)
	}
}
