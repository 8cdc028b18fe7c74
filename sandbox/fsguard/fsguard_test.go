package fsguard_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/agent-sandbox/sandbox/fsguard"
)

func Test_ValidatePath_Allows_When_PathIsInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "test.txt"), "hello")

	resolved, err := fsguard.ValidatePath(root, "test.txt")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}

	if filepath.Base(resolved) != "test.txt" {
		t.Fatalf("resolved = %q, want basename test.txt", resolved)
	}
}

func Test_ValidatePath_Blocks_When_PathTraversesAboveRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := fsguard.ValidatePath(root, "../../../etc/passwd")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !errors.Is(err, fsguard.ErrPathTraversal) {
		t.Fatalf("err = %v, want ErrPathTraversal", err)
	}
}

func Test_ValidatePath_Allows_When_PathIsNestedButInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "a", "b"))
	mustWriteFile(t, filepath.Join(root, "a", "b", "c.txt"), "content")

	_, err := fsguard.ValidatePath(root, filepath.Join("a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}
}

func Test_ValidatePath_Allows_When_PathDoesNotExistYetWithinRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	resolved, err := fsguard.ValidatePath(root, "new_file.txt")
	if err != nil {
		t.Fatalf("ValidatePath: %v", err)
	}

	if filepath.Dir(resolved) != root {
		t.Fatalf("resolved = %q, want parent %q", resolved, root)
	}
}

func Test_ValidatePath_Blocks_When_NonexistentPathTraversesAboveRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := fsguard.ValidatePath(root, "sub/../../escape.txt")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()

	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): %v", path, err)
	}
}
