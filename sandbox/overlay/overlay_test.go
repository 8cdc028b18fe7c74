package overlay_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/agent-sandbox/sandbox/overlay"
)

func Test_Diff_Reports_Created_When_NewFileAppears(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "existing.txt"), "hello")

	ov, err := overlay.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustWrite(t, filepath.Join(root, "new.txt"), "world")

	changes, err := ov.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(changes) != 1 || changes[0].Path != "new.txt" || changes[0].Kind != overlay.Created {
		t.Fatalf("changes = %+v, want single Created new.txt", changes)
	}
}

func Test_Diff_Reports_Modified_When_ContentChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "file.txt"), "original")

	ov, err := overlay.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustWrite(t, filepath.Join(root, "file.txt"), "modified")

	changes, err := ov.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(changes) != 1 || changes[0].Path != "file.txt" || changes[0].Kind != overlay.Modified {
		t.Fatalf("changes = %+v, want single Modified file.txt", changes)
	}
}

func Test_Diff_Reports_Deleted_When_FileRemoved(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	mustWrite(t, path, "content")

	ov, err := overlay.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	changes, err := ov.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(changes) != 1 || changes[0].Path != "file.txt" || changes[0].Kind != overlay.Deleted {
		t.Fatalf("changes = %+v, want single Deleted file.txt", changes)
	}
}

func Test_Diff_ReportsNoChanges_When_NothingTouched(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "file.txt"), "content")

	ov, err := overlay.New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	changes, err := ov.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	if len(changes) != 0 {
		t.Fatalf("changes = %+v, want none", changes)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}
