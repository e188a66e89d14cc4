package cmd

import (
	"strings"
	"testing"

	"github.com/caleb/fittrack/internal/models"
)

func TestResolveProfileByExactName(t *testing.T) {
	a := setupApp(t)

	a.DB.CreateProfile("aaaa-1111", models.Profile{Name: "Arun"})
	a.DB.CreateProfile("bbbb-2222", models.Profile{Name: "Mei"})

	rec, err := resolveProfile(a.DB, "Mei")
	if err != nil {
		t.Fatalf("resolveProfile failed: %v", err)
	}
	if rec.LocalID != "bbbb-2222" {
		t.Errorf("resolved %s, want bbbb-2222", rec.LocalID)
	}
}

func TestResolveProfileByPrefix(t *testing.T) {
	a := setupApp(t)

	a.DB.CreateProfile("aaaa-1111", models.Profile{Name: "Arun"})
	a.DB.CreateProfile("bbbb-2222", models.Profile{Name: "Mei"})

	rec, err := resolveProfile(a.DB, "bbbb")
	if err != nil {
		t.Fatalf("resolveProfile failed: %v", err)
	}
	if rec.Profile.Name != "Mei" {
		t.Errorf("resolved %s, want Mei", rec.Profile.Name)
	}
}

func TestResolveProfileAmbiguousPrefix(t *testing.T) {
	a := setupApp(t)

	a.DB.CreateProfile("aaaa-1111", models.Profile{Name: "Arun"})
	a.DB.CreateProfile("aaaa-2222", models.Profile{Name: "Mei"})

	_, err := resolveProfile(a.DB, "aaaa")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	if !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("error = %v, want ambiguity message", err)
	}
}

func TestResolveProfileMissing(t *testing.T) {
	a := setupApp(t)

	_, err := resolveProfile(a.DB, "ghost")
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "no profile matching") {
		t.Errorf("error = %v", err)
	}
}

func TestResolveProfileSuggestsCloseName(t *testing.T) {
	a := setupApp(t)

	a.DB.CreateProfile("aaaa-1111", models.Profile{Name: "Arun"})
	a.DB.CreateProfile("bbbb-2222", models.Profile{Name: "Mei"})

	_, err := resolveProfile(a.DB, "arum")
	if err == nil {
		t.Fatal("expected error for misspelled profile")
	}
	if !strings.Contains(err.Error(), "did you mean Arun") {
		t.Errorf("error = %v, want Arun suggestion", err)
	}
}

func TestHasPending(t *testing.T) {
	a := setupApp(t)

	a.DB.CreateProfile("p-1", models.Profile{Name: "Arun"})
	if hasPending(a, models.KindProfile, "p-1") {
		t.Error("fresh profile should have no pending mutation")
	}

	m := models.NewMutation(models.KindProfile, "p-1", models.ActionCreate, []byte(`{"name":"Arun"}`))
	if err := a.Engine.Queue().Enqueue(m); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !hasPending(a, models.KindProfile, "p-1") {
		t.Error("queued profile should be pending")
	}
}
