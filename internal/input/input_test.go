package input

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandValue_Passthrough(t *testing.T) {
	got, err := ExpandValue("felt strong today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "felt strong today" {
		t.Fatalf("got %q, want the value unchanged", got)
	}
}

func TestExpandValue_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("  tweaked my knee on set 3\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := ExpandValue("@" + path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tweaked my knee on set 3" {
		t.Fatalf("got %q, want the trimmed file content", got)
	}
}

func TestExpandValue_MissingFile(t *testing.T) {
	if _, err := ExpandValue("@" + filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
