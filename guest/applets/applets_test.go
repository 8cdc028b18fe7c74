package applets_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/agent-sandbox/guest/applets"
)

func Test_Cat_NumbersLines_When_DashNFlagGiven(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	code := applets.Cat([]string{"-n"}, strings.NewReader("a\nb\n"), stdout, stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, stderr.String())
	}

	want := "     1\ta\n     2\tb\n"
	if stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", stdout.String(), want)
	}
}

func Test_Head_ReturnsFirstNLines(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Head([]string{"-n", "2"}, strings.NewReader("a\nb\nc\nd\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "a\nb\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "a\nb\n")
	}
}

func Test_Tail_ReturnsLastNLines(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Tail([]string{"-n", "2"}, strings.NewReader("a\nb\nc\nd\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "c\nd\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "c\nd\n")
	}
}

func Test_Grep_FindsMatchingLines(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Grep([]string{"-n", "b"}, strings.NewReader("a\nbb\nc\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "2:bb\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "2:bb\n")
	}
}

func Test_Grep_ReturnsExitCode1_When_NoMatchFound(t *testing.T) {
	t.Parallel()

	code := applets.Grep([]string{"zzz"}, strings.NewReader("a\nb\n"), &bytes.Buffer{}, &bytes.Buffer{})

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func Test_Sort_OrdersLinesAscending(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Sort(nil, strings.NewReader("banana\napple\ncherry\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "apple\nbanana\ncherry\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func Test_Uniq_CollapsesAdjacentDuplicates(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Uniq(nil, strings.NewReader("a\na\nb\na\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "a\nb\na\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "a\nb\na\n")
	}
}

func Test_Cut_ExtractsField(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Cut([]string{"-d", ",", "-f", "2"}, strings.NewReader("a,b,c\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "b\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "b\n")
	}
}

func Test_Tr_TranslatesCharacterSets(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Tr([]string{"a-z", "A-Z"}, strings.NewReader("hello"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "HELLO" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "HELLO")
	}
}

func Test_Wc_CountsLinesWordsBytes(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Wc([]string{"-l"}, strings.NewReader("one\ntwo\nthree\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if strings.TrimSpace(stdout.String()) != "3" {
		t.Fatalf("stdout = %q, want line count 3", stdout.String())
	}
}

func Test_Rev_ReversesEachLine(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Rev(nil, strings.NewReader("abc\n"), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "cba\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "cba\n")
	}
}

func Test_Base64_RoundTrips_EncodeThenDecode(t *testing.T) {
	t.Parallel()

	encoded := &bytes.Buffer{}

	if code := applets.Base64(nil, strings.NewReader("hello"), encoded, &bytes.Buffer{}); code != 0 {
		t.Fatalf("encode exit code = %d, want 0", code)
	}

	decoded := &bytes.Buffer{}

	if code := applets.Base64([]string{"-d"}, strings.NewReader(encoded.String()), decoded, &bytes.Buffer{}); code != 0 {
		t.Fatalf("decode exit code = %d, want 0", code)
	}

	if decoded.String() != "hello" {
		t.Fatalf("decoded = %q, want %q", decoded.String(), "hello")
	}
}

func Test_Sha256sum_ProducesKnownDigest_ForEmptyInput(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Sha256sum(nil, strings.NewReader(""), stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855  -\n"
	if stdout.String() != want {
		t.Fatalf("stdout = %q, want %q", stdout.String(), want)
	}
}

func Test_Mkdir_CreatesNestedDirectories_When_PFlagGiven(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")

	code := applets.Mkdir([]string{"-p", target}, nil, &bytes.Buffer{}, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %q to be a directory, got err=%v", target, err)
	}
}

func Test_Cp_CopiesFileContents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	dst := filepath.Join(root, "dst.txt")

	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	code := applets.Cp([]string{src, dst}, nil, &bytes.Buffer{}, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "payload" {
		t.Fatalf("content = %q, want %q", got, "payload")
	}
}

func Test_Rm_ReturnsError_When_PathMissingAndNotForced(t *testing.T) {
	t.Parallel()

	code := applets.Rm([]string{filepath.Join(t.TempDir(), "missing")}, nil, &bytes.Buffer{}, &bytes.Buffer{})

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func Test_Echo_SuppressesNewline_When_DashNFlagGiven(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Echo([]string{"-n", "hi"}, nil, stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "hi" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "hi")
	}
}

func Test_Printf_ExpandsStringAndIntegerDirectives(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Printf([]string{"%s is %d\\n", "x", "3"}, nil, stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if stdout.String() != "x is 3\n" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "x is 3\n")
	}
}

func Test_Basename_StripsSuffix_When_Given(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Basename([]string{"/a/b/file.txt", ".txt"}, nil, stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if strings.TrimSpace(stdout.String()) != "file" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "file")
	}
}

func Test_Seq_GeneratesRange(t *testing.T) {
	t.Parallel()

	stdout := &bytes.Buffer{}

	code := applets.Seq([]string{"1", "3"}, nil, stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if strings.TrimSpace(stdout.String()) != "1\n2\n3" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func Test_Sleep_AcceptsNumericOperand_WithoutBlocking(t *testing.T) {
	t.Parallel()

	code := applets.Sleep([]string{"2"}, nil, &bytes.Buffer{}, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func Test_Which_ReportsUnknownCommand(t *testing.T) {
	t.Parallel()

	stderr := &bytes.Buffer{}

	code := applets.Which([]string{"not-a-command"}, nil, &bytes.Buffer{}, stderr)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func Test_Date_FormatsSandboxTime(t *testing.T) {
	t.Setenv("SANDBOX_TIME", "0")

	stdout := &bytes.Buffer{}

	code := applets.Date([]string{"+%F"}, nil, stdout, &bytes.Buffer{})

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if strings.TrimSpace(stdout.String()) != "1970-01-01" {
		t.Fatalf("stdout = %q, want %q", stdout.String(), "1970-01-01")
	}
}

func Test_Test_EvaluatesStringEquality(t *testing.T) {
	t.Parallel()

	if code := applets.Test([]string{"foo", "=", "foo"}, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if code := applets.Test([]string{"foo", "=", "bar"}, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func Test_Test_EvaluatesFileExistence(t *testing.T) {
	t.Parallel()

	existing := filepath.Join(t.TempDir(), "present.txt")

	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if code := applets.Test([]string{"-e", existing}, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Fatalf("exit code = %d, want 0 for existing file", code)
	}

	if code := applets.Test([]string{"-e", existing + "-missing"}, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 1 {
		t.Fatalf("exit code = %d, want 1 for missing file", code)
	}
}

func Test_True_And_False_ReturnFixedExitCodes(t *testing.T) {
	t.Parallel()

	if code := applets.True(nil, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 0 {
		t.Fatalf("True exit code = %d, want 0", code)
	}

	if code := applets.False(nil, nil, &bytes.Buffer{}, &bytes.Buffer{}); code != 1 {
		t.Fatalf("False exit code = %d, want 1", code)
	}
}
