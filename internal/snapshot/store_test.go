package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := payload{Name: "pool", Count: 7}
	if err := store.Save("state", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := Load(store, "state", payload{})
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLoad_MissingSnapshotReturnsDefault(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := payload{Name: "default", Count: 1}
	if got := Load(store, "nope", def); got != def {
		t.Fatalf("got %+v, want the default", got)
	}
}

func TestLoad_CorruptSnapshotReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := payload{Name: "default"}
	if got := Load(store, "bad", def); got != def {
		t.Fatalf("got %+v, want the default", got)
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save("state", payload{Name: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.Save("state", payload{Count: 1})
	store.Save("state", payload{Count: 2})

	if got := Load(store, "state", payload{}); got.Count != 2 {
		t.Fatalf("got count %d, want 2", got.Count)
	}
}

func TestNewStore_RequiresDir(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatalf("expected error")
	}
}
