package shell_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/agent-sandbox/guest/shell"
)

func mustRun(t *testing.T, script string, args ...string) (string, string, int) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	code := shell.Run(script, args, strings.NewReader(""), &stdout, &stderr)

	return stdout.String(), stderr.String(), code
}

func Test_Run_Echoes_Simple_Command(t *testing.T) {
	t.Parallel()

	out, _, code := mustRun(t, "echo hello world")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if out != "hello world\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_Chains_AndOr_When_FirstCommandFails(t *testing.T) {
	t.Parallel()

	out, _, code := mustRun(t, "false || echo fallback")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if out != "fallback\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_ShortCircuits_And_When_FirstCommandFails(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "false && echo unreachable")

	if out != "" {
		t.Fatalf("stdout = %q, want empty", out)
	}
}

// Test_Run_Pipes_Output_Between_Stages and Test_Run_Pipeline_CleansUpTempFiles
// chdir the whole process to give the pipeline's relative temp files a
// private directory, so they do not run concurrently with each other.
func Test_Run_Pipes_Output_Between_Stages(t *testing.T) {
	dir := t.TempDir()

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { os.Chdir(oldwd) })

	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	out, stderr, code := mustRun(t, "printf 'b\\na\\nc\\n' | sort")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}

	if out != "a\nb\nc\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_Pipeline_CleansUpTempFiles(t *testing.T) {
	dir := t.TempDir()

	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { os.Chdir(oldwd) })

	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	_, _, code := mustRun(t, "echo hi | cat | rev")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".sh_pipe_") {
			t.Fatalf("leftover pipeline temp file: %s", e.Name())
		}
	}
}

func Test_Run_EvaluatesIf_When_ConditionSucceeds(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "if true; then echo yes; else echo no; fi")

	if out != "yes\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_EvaluatesIf_When_ConditionFails(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "if false; then echo yes; else echo no; fi")

	if out != "no\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_IteratesFor_OverWordList(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "for x in a b c; do echo $x; done")

	if out != "a\nb\nc\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_BreaksOutOfWhile(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, `
i=0
while true; do
  i=$((i + 1))
  echo $i
  if [ $i = 3 ]; then
    break
  fi
done
`)

	if out != "1\n2\n3\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_ExpandsVariableAssignment(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "NAME=world; echo hello $NAME")

	if out != "hello world\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_ExpandsDefaultValue_When_VarUnset(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, "echo ${MISSING:-fallback}")

	if out != "fallback\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_CapturesCommandSubstitution(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, `X=$(echo inner); echo "got: $X"`)

	if out != "got: inner\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_DefinesAndCallsFunction(t *testing.T) {
	t.Parallel()

	out, _, code := mustRun(t, `
greet() {
  echo "hi $1"
}
greet world
`)

	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	if out != "hi world\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_RedirectsOutputToFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	_, stderr, code := mustRun(t, "echo content > "+target)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "content\n" {
		t.Fatalf("file contents = %q", data)
	}
}

func Test_Run_EvaluatesCase(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, `
x=foo
case $x in
  bar) echo matched-bar ;;
  foo) echo matched-foo ;;
esac
`)

	if out != "matched-foo\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Run_ReturnsExitCodeFromExit(t *testing.T) {
	t.Parallel()

	_, _, code := mustRun(t, "exit 7")

	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func Test_Run_SetsPositionalParameters_From_ExtraArgs(t *testing.T) {
	t.Parallel()

	out, _, _ := mustRun(t, `echo "$1 $2"`, "a", "b")

	if out != "a b\n" {
		t.Fatalf("stdout = %q", out)
	}
}

// Not t.Parallel(): mutates the package-level shell.ExternalDispatch hook,
// which every other test's dispatch path also reads.
func Test_Run_DispatchesUnknownCommand_Via_ExternalDispatch(t *testing.T) {
	old := shell.ExternalDispatch
	t.Cleanup(func() { shell.ExternalDispatch = old })

	shell.ExternalDispatch = func(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, bool) {
		if name != "curl" {
			return 0, false
		}

		fmt.Fprintf(stdout, "fetched %s\n", strings.Join(args, ","))

		return 0, true
	}

	out, _, code := mustRun(t, "curl http://example.invalid/")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if out != "fetched http://example.invalid/\n" {
		t.Fatalf("stdout = %q", out)
	}
}

func Test_Main_RunsDashCScript(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := shell.Main([]string{"-c", "echo via-main"}, strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	if stdout.String() != "via-main\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}
