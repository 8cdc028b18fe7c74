package sandbox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

func Test_New_Fails_When_WorkDirIsEmpty(t *testing.T) {
	t.Parallel()

	_, err := sandbox.New(&sandbox.Config{})
	if err == nil {
		t.Fatal("expected an error for a missing WorkDir, got nil")
	}
}

func Test_New_Succeeds_When_WorkDirExists(t *testing.T) {
	t.Parallel()

	s, err := sandbox.New(&sandbox.Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.ID() == "" {
		t.Fatal("expected a non-empty sandbox ID")
	}
}

func Test_Exec_Fails_When_SandboxIsDestroyed(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	_, err := s.Exec(t.Context(), "echo", nil)
	if err == nil {
		t.Fatal("expected an error after Destroy, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindDestroyed {
		t.Fatalf("Kind() = %v, want KindDestroyed", sandboxErr.Kind())
	}
}

func Test_Exec_Fails_When_CommandIsUnknown(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	_, err := s.Exec(t.Context(), "not-a-real-command", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown command, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindCommandNotFound {
		t.Fatalf("Kind() = %v, want KindCommandNotFound", sandboxErr.Kind())
	}
}

func Test_ExecCurl_Fails_When_NoFetchPolicyConfigured(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	_, err := s.ExecCurl(t.Context(), []string{"https://example.com"})

	assertNetworkingDisabled(t, err)
}

func Test_Exec_Fails_With_NetworkingDisabled_When_CommandIsCurl_And_NoFetchPolicyConfigured(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	_, err := s.Exec(t.Context(), "curl", []string{"https://example.com"})

	assertNetworkingDisabled(t, err)
}

func Test_Fetch_Fails_When_NoFetchPolicyConfigured(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	_, err := s.Fetch(t.Context(), sandbox.FetchRequest{URL: "https://example.com"})

	assertNetworkingDisabled(t, err)
}

func Test_Fetch_Fails_When_SandboxIsDestroyed(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	_, err := s.Fetch(t.Context(), sandbox.FetchRequest{URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected an error after Destroy, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindDestroyed {
		t.Fatalf("Kind() = %v, want KindDestroyed", sandboxErr.Kind())
	}
}

func Test_ExecJS_Fails_When_NodeIsUnavailable(t *testing.T) {
	t.Parallel()

	// node was dropped from the guest applet table; exec_js must still
	// exist as an operation and surface the same CommandNotFound a direct
	// Exec("node", ...) would.
	s := mustNewSandbox(t)

	_, err := s.ExecJS(t.Context(), "console.log(1)")
	if err == nil {
		t.Fatal("expected an error, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindCommandNotFound {
		t.Fatalf("Kind() = %v, want KindCommandNotFound", sandboxErr.Kind())
	}
}

func Test_ReadFile_Fails_When_PathEscapesWorkDir(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	_, err := s.ReadFile("../../etc/passwd")
	if err == nil {
		t.Fatal("expected an error for a path-traversal attempt, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindPathTraversal {
		t.Fatalf("Kind() = %v, want KindPathTraversal", sandboxErr.Kind())
	}
}

func Test_WriteFile_Then_ReadFile_RoundTrips(t *testing.T) {
	t.Parallel()

	s := mustNewSandbox(t)

	if err := s.WriteFile("nested/dir/out.txt", []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := s.ReadFile("nested/dir/out.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}
}

func Test_Diff_ReportsCreatedFile_When_WriteFileIsCalled(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	s := mustNewSandboxAt(t, workDir)

	if err := s.WriteFile("new.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	changes, err := s.Diff()
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	found := false

	for _, c := range changes {
		if c.Path == "new.txt" && c.Kind == "created" {
			found = true
		}
	}

	if !found {
		t.Fatalf("changes = %+v, want a created entry for new.txt", changes)
	}
}

func Test_ListDir_ReturnsSortedEntries(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	mustWriteFile(t, filepath.Join(workDir, "b.txt"), "b")
	mustWriteFile(t, filepath.Join(workDir, "a.txt"), "a")

	s := mustNewSandboxAt(t, workDir)

	entries, err := s.ListDir(".")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}

	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Fatalf("entries = %+v, want [a.txt, b.txt]", entries)
	}
}

func mustNewSandbox(t *testing.T) *sandbox.Sandbox {
	t.Helper()

	return mustNewSandboxAt(t, t.TempDir())
}

func mustNewSandboxAt(t *testing.T, workDir string) *sandbox.Sandbox {
	t.Helper()

	s, err := sandbox.New(&sandbox.Config{WorkDir: workDir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return s
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}

func assertNetworkingDisabled(t *testing.T, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("expected an error, got nil")
	}

	var sandboxErr *sandbox.Error
	if !asError(err, &sandboxErr) {
		t.Fatalf("err = %v, want *sandbox.Error", err)
	}

	if sandboxErr.Kind() != sandbox.KindNetworkingDisabled {
		t.Fatalf("Kind() = %v, want KindNetworkingDisabled", sandboxErr.Kind())
	}
}

func asError(err error, target **sandbox.Error) bool {
	e, ok := err.(*sandbox.Error)
	if !ok {
		return false
	}

	*target = e

	return true
}
