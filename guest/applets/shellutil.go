package applets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Echo implements echo, including -n to suppress the trailing newline.
func Echo(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	noNewline := false
	start := 0

	if len(args) > 0 && args[0] == "-n" {
		noNewline = true
		start = 1
	}

	output := strings.Join(args[start:], " ")

	if noNewline {
		fmt.Fprint(stdout, output)
	} else {
		fmt.Fprintln(stdout, output)
	}

	return 0
}

// Printf implements a subset of printf's format directives: %s, %d, %%, and
// the \n \t \\ \" \0 escapes.
func Printf(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return 0
	}

	format := []rune(args[0])
	params := args[1:]
	paramIdx := 0

	for i := 0; i < len(format); i++ {
		switch {
		case format[i] == '\\' && i+1 < len(format):
			switch format[i+1] {
			case 'n':
				fmt.Fprintln(stdout)
			case 't':
				fmt.Fprint(stdout, "\t")
			case '\\':
				fmt.Fprint(stdout, "\\")
			case '"':
				fmt.Fprint(stdout, "\"")
			case '0':
				fmt.Fprint(stdout, "\x00")
			default:
				fmt.Fprintf(stdout, "\\%c", format[i+1])
			}

			i++
		case format[i] == '%' && i+1 < len(format):
			switch format[i+1] {
			case 's':
				if paramIdx < len(params) {
					fmt.Fprint(stdout, params[paramIdx])
					paramIdx++
				}
			case 'd':
				if paramIdx < len(params) {
					n, _ := strconv.ParseInt(params[paramIdx], 10, 64)
					fmt.Fprint(stdout, n)
					paramIdx++
				}
			case '%':
				fmt.Fprint(stdout, "%")
			default:
				fmt.Fprintf(stdout, "%%%c", format[i+1])
			}

			i++
		default:
			fmt.Fprint(stdout, string(format[i]))
		}
	}

	return 0
}

// Env implements env: printing the current environment, or with VAR=val
// operands, setting them for the remainder of this process and printing
// the result (the guest toolbox has no subprocess to exec into).
func Env(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmdStart := 0

	for i, arg := range args {
		if key, val, ok := strings.Cut(arg, "="); ok {
			os.Setenv(key, val)
			cmdStart = i + 1
		} else {
			cmdStart = i

			break
		}
	}

	_ = cmdStart

	for _, kv := range os.Environ() {
		fmt.Fprintln(stdout, kv)
	}

	return 0
}

// Basename implements basename, including an optional suffix to strip.
func Basename(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return fail(stderr, "basename: missing operand")
	}

	name := filepath.Base(args[0])

	if len(args) > 1 {
		suffix := args[1]
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
		}
	}

	fmt.Fprintln(stdout, name)

	return 0
}

// Dirname implements dirname over one or more operands.
func Dirname(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return fail(stderr, "dirname: missing operand")
	}

	for _, arg := range args {
		fmt.Fprintln(stdout, filepath.Dir(arg))
	}

	return 0
}

// Seq implements a subset of coreutils seq: seq LAST | seq FIRST LAST |
// seq FIRST INCREMENT LAST, with -s <separator>.
func Seq(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	separator := "\n"

	var nums []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-s":
			i++
			if i < len(args) {
				separator = args[i]
			}
		default:
			nums = append(nums, args[i])
		}
	}

	var first, increment, last float64

	var ok bool

	switch len(nums) {
	case 1:
		first, increment = 1, 1
		last, ok = parseFloat(nums[0])
	case 2:
		first, ok = parseFloat(nums[0])
		increment = 1

		var lastOK bool

		last, lastOK = parseFloat(nums[1])
		ok = ok && lastOK
	case 3:
		var firstOK, incOK, lastOK bool

		first, firstOK = parseFloat(nums[0])
		increment, incOK = parseFloat(nums[1])
		last, lastOK = parseFloat(nums[2])
		ok = firstOK && incOK && lastOK
	default:
		return fail(stderr, "seq: missing operand")
	}

	if !ok {
		return fail(stderr, "seq: invalid argument")
	}

	if increment == 0 {
		return fail(stderr, "seq: zero increment")
	}

	var values []float64

	for current := first; (increment > 0 && current <= last+1e-9) || (increment < 0 && current >= last-1e-9); current += increment {
		values = append(values, current)
	}

	out := make([]string, len(values))

	for i, v := range values {
		if v == float64(int64(v)) {
			out[i] = strconv.FormatInt(int64(v), 10)
		} else {
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	fmt.Fprintln(stdout, strings.Join(out, separator))

	return 0
}

func isKnownCommand(name string) bool {
	if _, ok := Table[name]; ok {
		return true
	}

	for _, extra := range ExtraCommands {
		if extra == name {
			return true
		}
	}

	return false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)

	return f, err == nil
}

// Sleep accepts a duration operand for shell-script compatibility but
// never actually blocks: a guest invocation runs under a wall-clock
// timeout and fuel budget, so sleeping would only burn the budget for no
// purpose.
func Sleep(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return fail(stderr, "sleep: missing operand")
	}

	for _, arg := range args {
		trimmed := strings.TrimSuffix(arg, "s")
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return fail(stderr, "sleep: invalid time interval '%s'", arg)
		}
	}

	return 0
}

// Which reports the canonical path of each named toolbox command.
func Which(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return 1
	}

	exitCode := 0

	for _, name := range args {
		if isKnownCommand(name) {
			fmt.Fprintf(stdout, "/usr/bin/%s\n", name)
		} else {
			fmt.Fprintf(stderr, "which: no %s in toolbox\n", name)
			exitCode = 1
		}
	}

	return exitCode
}

// Date reports the time recorded in the SANDBOX_TIME environment variable
// (seconds since the Unix epoch) rather than a real clock read, so sandbox
// runs stay reproducible; a strftime-style "+FORMAT" operand is honored.
func Date(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	epochSecs := int64(0)

	if raw := os.Getenv("SANDBOX_TIME"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			epochSecs = n
		}
	}

	t := time.Unix(epochSecs, 0).UTC()

	for _, arg := range args {
		if format, ok := strings.CutPrefix(arg, "+"); ok {
			fmt.Fprintln(stdout, formatDate(t, epochSecs, format))

			return 0
		}
	}

	fmt.Fprintln(stdout, t.Format("2006-01-02 15:04:05")+" UTC")

	return 0
}

func formatDate(t time.Time, epochSecs int64, format string) string {
	var out strings.Builder

	chars := []rune(format)

	for i := 0; i < len(chars); i++ {
		if chars[i] != '%' || i+1 >= len(chars) {
			out.WriteRune(chars[i])

			continue
		}

		i++

		switch chars[i] {
		case 'Y':
			fmt.Fprintf(&out, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&out, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&out, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&out, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&out, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&out, "%02d", t.Second())
		case 's':
			fmt.Fprintf(&out, "%d", epochSecs)
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case '%':
			out.WriteByte('%')
		case 'F':
			fmt.Fprintf(&out, "%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
		case 'T':
			fmt.Fprintf(&out, "%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
		default:
			out.WriteByte('%')
			out.WriteRune(chars[i])
		}
	}

	return out.String()
}

// True and False implement the POSIX true/false no-op utilities.
func True(args []string, stdin io.Reader, stdout, stderr io.Writer) int  { return 0 }
func False(args []string, stdin io.Reader, stdout, stderr io.Writer) int { return 1 }
