package migrations

import "testing"

func TestAvailable(t *testing.T) {
	versions, err := Available()
	if err != nil {
		t.Fatalf("Available() failed: %v", err)
	}

	want := []uint{1, 2}
	if len(versions) != len(want) {
		t.Fatalf("expected versions %v, got %v", want, versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("expected versions %v, got %v", want, versions)
		}
	}
}

func TestEmbeddedFilesArePaired(t *testing.T) {
	for _, name := range []string{
		"sql/000001_create_clue_progress.up.sql",
		"sql/000001_create_clue_progress.down.sql",
		"sql/000002_create_portal_events.up.sql",
		"sql/000002_create_portal_events.down.sql",
	} {
		raw, err := migrationFiles.ReadFile(name)
		if err != nil {
			t.Fatalf("missing embedded migration %s: %v", name, err)
		}
		if len(raw) == 0 {
			t.Fatalf("embedded migration %s is empty", name)
		}
	}
}

func TestNewRunner_EmptyURL(t *testing.T) {
	if _, err := NewRunner(""); err == nil {
		t.Error("Expected error for empty database URL")
	}
}
