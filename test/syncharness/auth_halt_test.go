package syncharness

import (
	"testing"
)

func TestRejectedKeyHaltsQueueThenResumes(t *testing.T) {
	h := NewHarness(t, 1)
	h.SetAPIKey("client-A", "wrong-key")

	h.AddProfile("client-A", "Arun", 70)
	h.AddProfile("client-A", "Mei", 55)

	h.Connect("client-A")
	rep := h.Drain("client-A")

	// The rejected key halts the pass on the first record. Nothing applied,
	// nothing dropped, nothing retried.
	if !rep.AuthRequired {
		t.Fatalf("drain with bad key: got %s, want auth required", rep.Summary())
	}
	if rep.Applied != 0 || len(rep.Failures) != 0 || rep.Retrying != 0 {
		t.Fatalf("halted drain touched the queue: %s", rep.Summary())
	}
	if got := h.Pending("client-A"); got != 2 {
		t.Fatalf("pending after halt: got %d, want 2", got)
	}
	if got := h.ServerCount("profiles"); got != 0 {
		t.Fatalf("server profiles after halt: got %d, want 0", got)
	}
	if h.LastSyncAt("client-A") != nil {
		t.Fatalf("sync time must not advance on an auth halt")
	}

	// Re-authenticating resumes exactly where the queue stood, in order.
	h.SetAPIKey("client-A", h.APIKey)
	h.Connect("client-A")
	rep = h.Drain("client-A")

	if rep.Applied != 2 {
		t.Fatalf("drain after re-auth: got %s, want 2 applied", rep.Summary())
	}
	if got := h.Pending("client-A"); got != 0 {
		t.Fatalf("pending after re-auth: got %d, want 0", got)
	}
	docs := h.ServerDocs("profiles")
	if len(docs) != 2 {
		t.Fatalf("server profiles: got %d, want 2", len(docs))
	}
	if docs[0]["name"] != "Arun" || docs[1]["name"] != "Mei" {
		t.Fatalf("server order: got %v then %v, want Arun then Mei",
			docs[0]["name"], docs[1]["name"])
	}
}
