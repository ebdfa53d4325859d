package autosave

import (
	"os"
	"path/filepath"
	"testing"

	"loremaster/internal/transcript"
)

func TestSaveRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "session.json")

	store := transcript.NewStore()
	if _, err := store.Append(transcript.Turn{Role: transcript.RoleUser, Content: "I search the alley"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(transcript.Turn{Role: transcript.RoleAssistant, Content: "You find a discarded talisman."}); err != nil {
		t.Fatal(err)
	}

	if err := New(store, path).Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}

	restored := transcript.NewStore()
	if err := New(restored, path).Restore(); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	got := restored.All()
	if len(got) != 2 {
		t.Fatalf("expected 2 turns after restore, got %d", len(got))
	}
	if got[1].Content != "You find a discarded talisman." {
		t.Fatalf("unexpected restored content %q", got[1].Content)
	}
}

func TestRestoreMissingSnapshotIsNoop(t *testing.T) {
	store := transcript.NewStore()
	s := New(store, filepath.Join(t.TempDir(), "absent.json"))
	if err := s.Restore(); err != nil {
		t.Fatalf("restore of a missing snapshot should be a no-op, got %v", err)
	}
	if len(store.All()) != 0 {
		t.Fatal("store should stay empty")
	}
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`[{"role":"user"},{"content":"no role"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := transcript.NewStore()
	if err := New(store, path).Restore(); err == nil {
		t.Fatal("expected an error for a malformed snapshot")
	}
	if len(store.All()) != 0 {
		t.Fatal("a failed restore must not leave partial turns")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(transcript.NewStore(), filepath.Join(t.TempDir(), "s.json"))
	if err := s.Start("not a cron spec"); err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}
