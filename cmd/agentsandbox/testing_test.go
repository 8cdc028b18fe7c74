package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CLI provides a clean interface for running CLI commands in tests. It
// manages a temp directory and environment variables, and calls Run directly
// in-process rather than shelling out to a compiled binary.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLITester creates a new test CLI with a temp directory. The environment
// is pre-seeded with HOME (pointing to Dir) and PATH so config lookups and
// subprocess-free guest behavior don't depend on the developer's machine.
func NewCLITester(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:   t,
		Dir: dir,
		Env: map[string]string{
			"HOME": dir,
			"PATH": os.Getenv("PATH"),
		},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and
// exit code. For "run"/"exec"/"diff"/"check" invocations, "--cwd <Dir>" is
// injected right after the subcommand name so config/mount lookups resolve
// against the test's isolated temp directory rather than the process cwd.
func (c *CLI) Run(args ...string) (string, string, int) {
	return c.RunWithInput(nil, args...)
}

// RunWithInput executes the CLI with stdin and args.
func (c *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader

	switch v := stdin.(type) {
	case nil:
		inReader = nil
	case io.Reader:
		inReader = v
	case []string:
		inReader = strings.NewReader(strings.Join(v, "\n"))
	default:
		panic(fmt.Sprintf("RunWithInput: stdin must be nil, io.Reader, or []string, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{binaryName}, c.withCwd(args)...)
	code := Run(inReader, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

func (c *CLI) withCwd(args []string) []string {
	if len(args) == 0 {
		return args
	}

	switch args[0] {
	case "run", "exec", "diff", "check":
	default:
		return args
	}

	out := make([]string, 0, len(args)+2)
	out = append(out, args[0], "--cwd", c.Dir)
	out = append(out, args[1:]...)

	return out
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a file in the test directory.
func (c *CLI) WriteFile(relPath, content string) {
	c.t.Helper()

	path := filepath.Join(c.Dir, relPath)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		c.t.Fatalf("failed to create dir %s: %v", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		c.t.Fatalf("failed to write file %s: %v", relPath, err)
	}
}

// ReadFile reads content from a file in the test directory.
func (c *CLI) ReadFile(relPath string) string {
	c.t.Helper()

	content, err := os.ReadFile(filepath.Join(c.Dir, relPath))
	if err != nil {
		c.t.Fatalf("failed to read file %s: %v", relPath, err)
	}

	return string(content)
}

// FileExists returns true if the file exists in the test directory.
func (c *CLI) FileExists(relPath string) bool {
	_, err := os.Stat(filepath.Join(c.Dir, relPath))

	return err == nil
}

// stripANSI removes ANSI escape codes from a string, so assertions don't
// depend on whether the test process has a TTY attached.
func stripANSI(s string) string {
	result := s

	for {
		start := strings.Index(result, "\033[")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "m")
		if end == -1 {
			break
		}

		result = result[:start] + result[start+end+1:]
	}

	return result
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if !strings.Contains(cleaned, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if strings.Contains(cleaned, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
