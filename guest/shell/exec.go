package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/calvinalkan/agent-sandbox/guest/applets"
)

// pid is a fixed placeholder for $$: a guest toolbox invocation is one WASM
// instance with no real process id to report.
const pid = 1

// breakSignal, continueSignal, and returnSignal unwind the Go call stack
// the way break/continue/return unwind a real interpreter's command loop.
type breakSignal struct{ levels int }
type continueSignal struct{ levels int }
type returnSignal struct{ code int }

func (breakSignal) Error() string    { return "shell: break" }
func (continueSignal) Error() string { return "shell: continue" }
func (returnSignal) Error() string   { return "shell: return" }

var builtinNames = map[string]bool{
	"cd": true, "export": true, "unset": true, "set": true, "read": true,
	"exit": true, "test": true, "[": true, "true": true, "false": true,
	":": true, "shift": true, "local": true, "source": true, ".": true,
	"return": true, "break": true, "continue": true, "eval": true, "type": true,
}

var pipeCounter int64

// interp is one running shell evaluation: its environment, I/O streams,
// and the dispatcher for commands outside the builtin table.
type interp struct {
	env      *ShellEnv
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	workDir  string
	dispatch func(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, bool)
}

// Run parses and executes scriptSource with extraArgs as the positional
// parameters ($1, $2, ...), returning its exit status. A parse error is
// printed to stderr and returns 2. Main handles the "-c" and script-file
// forms and calls Run with the resulting source.
func Run(scriptSource string, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog, err := Parse(scriptSource)
	if err != nil {
		fmt.Fprintf(stderr, "sh: %v\n", err)

		return 2
	}

	env := NewEnv()
	env.SetPositional(extraArgs)

	ip := &interp{
		env:      env,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		dispatch: dispatchApplet,
	}

	code, err := ip.runProgram(prog)
	if err != nil {
		var rs returnSignal
		if errors.As(err, &rs) {
			return rs.code
		}

		fmt.Fprintf(stderr, "sh: %v\n", err)

		return 1
	}

	return code
}

func dispatchApplet(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, bool) {
	if fn, ok := applets.Table[name]; ok {
		return fn(args, stdin, stdout, stderr), true
	}

	if ExternalDispatch != nil {
		return ExternalDispatch(name, args, stdin, stdout, stderr)
	}

	return 0, false
}

// ExternalDispatch is an optional hook for commands this package cannot
// implement itself, such as "curl" (which needs the wasm-only fetch
// bridge). guest/main.go wires it once at startup; a nil hook just means
// those commands report "not found" inside shell scripts.
var ExternalDispatch func(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, bool)

func (ip *interp) runProgram(prog *Program) (int, error) {
	code := ip.env.LastStatus

	for _, cc := range prog.Commands {
		c, err := ip.runAndOrList(cc.List)
		if err != nil {
			return c, err
		}

		code = c
		ip.env.LastStatus = code
	}

	return code, nil
}

func (ip *interp) runAndOrList(list *AndOrList) (int, error) {
	code, err := ip.runPipeline(list.First)
	if err != nil {
		return code, err
	}

	for _, op := range list.Rest {
		if op.Op == "&&" && code != 0 {
			continue
		}

		if op.Op == "||" && code == 0 {
			continue
		}

		code, err = ip.runPipeline(op.Pipeline)
		if err != nil {
			return code, err
		}
	}

	return code, nil
}

func (ip *interp) runPipeline(pl *Pipeline) (int, error) {
	var code int

	var err error

	if len(pl.Commands) == 1 {
		code, err = ip.runCommand(pl.Commands[0], ip.stdin, ip.stdout, ip.stderr)
	} else {
		code, err = ip.runPipelineStages(pl.Commands)
	}

	if err != nil {
		return code, err
	}

	if pl.Negate {
		if code == 0 {
			code = 1
		} else {
			code = 0
		}
	}

	return code, nil
}

// runPipelineStages connects n pipeline stages through n-1 host-mediated
// temp files named .sh_pipe_<id> in the current directory (the guest's
// sandboxed work directory, "/work"), since the guest has no in-process
// pipe primitive: stage i's stdout is the temp file stage i+1 reads as
// stdin. Every temp file is removed before returning, including when a
// stage fails.
func (ip *interp) runPipelineStages(commands []Command) (int, error) {
	n := len(commands)

	files := make([]string, n-1)

	for i := range files {
		id := atomic.AddInt64(&pipeCounter, 1)
		files[i] = filepath.Join(ip.workDir, fmt.Sprintf(".sh_pipe_%d", id))
	}

	defer func() {
		for _, f := range files {
			os.Remove(f)
		}
	}()

	var (
		code int
		err  error
	)

	for i, cmd := range commands {
		var in io.Reader = ip.stdin

		if i > 0 {
			f, openErr := os.Open(files[i-1])
			if openErr != nil {
				return 1, fmt.Errorf("shell: pipeline: %w", openErr)
			}

			defer f.Close()

			in = f
		}

		var out io.Writer = ip.stdout

		if i < n-1 {
			f, createErr := os.Create(files[i])
			if createErr != nil {
				return 1, fmt.Errorf("shell: pipeline: %w", createErr)
			}

			out = f

			code, err = ip.runCommand(cmd, in, out, ip.stderr)

			f.Close()
		} else {
			code, err = ip.runCommand(cmd, in, out, ip.stderr)
		}

		if err != nil {
			return code, err
		}
	}

	return code, nil
}

func (ip *interp) runCommand(cmd Command, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	switch c := cmd.(type) {
	case *SimpleCommand:
		return ip.runSimpleCommand(c, stdin, stdout, stderr)
	case *If:
		return ip.runIf(c, stdin, stdout, stderr)
	case *For:
		return ip.runFor(c, stdin, stdout, stderr)
	case *While:
		return ip.runWhile(c, stdin, stdout, stderr)
	case *Until:
		return ip.runUntil(c, stdin, stdout, stderr)
	case *Case:
		return ip.runCase(c, stdin, stdout, stderr)
	case *Subshell:
		return ip.runSubshell(c, stdin, stdout, stderr)
	case *BraceGroup:
		return ip.withStreams(stdin, stdout, stderr, func() (int, error) { return ip.runProgram(c.Body) })
	case *FuncDef:
		ip.env.DefineFunction(c.Name, c.Body)

		return 0, nil
	default:
		return 1, fmt.Errorf("shell: unhandled command %T", cmd)
	}
}

// withStreams temporarily swaps this interp's I/O streams for the duration
// of fn, restoring the previous ones afterward. Pipeline stages and brace
// groups need this since they share the interp rather than spawning a
// nested one.
func (ip *interp) withStreams(stdin io.Reader, stdout, stderr io.Writer, fn func() (int, error)) (int, error) {
	oldIn, oldOut, oldErr := ip.stdin, ip.stdout, ip.stderr
	ip.stdin, ip.stdout, ip.stderr = stdin, stdout, stderr

	defer func() { ip.stdin, ip.stdout, ip.stderr = oldIn, oldOut, oldErr }()

	return fn()
}

func (ip *interp) runSimpleCommand(c *SimpleCommand, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	for _, a := range c.Assignments {
		fields, err := ip.expandWord(a.Value)
		if err != nil {
			return 1, err
		}

		ip.env.Set(a.Name, strings.Join(fields, " "))
	}

	if len(c.Words) == 0 {
		return 0, nil
	}

	var argv []string

	for _, w := range c.Words {
		fields, err := ip.expandWord(w)
		if err != nil {
			return 1, err
		}

		argv = append(argv, fields...)
	}

	if len(argv) == 0 {
		return 0, nil
	}

	name, args := argv[0], argv[1:]

	in, out, errW, cleanup, err := ip.applyRedirects(c.Redirects, stdin, stdout, stderr)
	if err != nil {
		return 1, err
	}

	defer cleanup()

	return ip.dispatchCommand(name, args, in, out, errW)
}

func (ip *interp) applyRedirects(redirects []*Redirect, stdin io.Reader, stdout, stderr io.Writer) (io.Reader, io.Writer, io.Writer, func(), error) {
	if len(redirects) == 0 {
		return stdin, stdout, stderr, func() {}, nil
	}

	var opened []io.Closer

	cleanup := func() {
		for _, c := range opened {
			c.Close()
		}
	}

	for _, r := range redirects {
		targetFields, err := ip.expandWord(r.Target)
		if err != nil {
			cleanup()

			return nil, nil, nil, func() {}, err
		}

		target := strings.Join(targetFields, " ")
		fd := r.FD

		switch r.Kind {
		case RedirectOutput, RedirectAppend:
			if fd == -1 {
				fd = 1
			}

			flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if r.Kind == RedirectAppend {
				flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}

			f, err := os.OpenFile(target, flags, 0o644)
			if err != nil {
				cleanup()

				return nil, nil, nil, func() {}, fmt.Errorf("shell: %s: %w", target, err)
			}

			opened = append(opened, f)

			if fd == 2 {
				stderr = f
			} else {
				stdout = f
			}
		case RedirectInput:
			f, err := os.Open(target)
			if err != nil {
				cleanup()

				return nil, nil, nil, func() {}, fmt.Errorf("shell: %s: %w", target, err)
			}

			opened = append(opened, f)
			stdin = f
		case RedirectHereString:
			stdin = strings.NewReader(target + "\n")
		case RedirectDupOutput:
			if fd == 2 && target == "1" {
				stderr = stdout
			} else if fd == 1 && target == "2" {
				stdout = stderr
			}
		}
	}

	return stdin, stdout, stderr, cleanup, nil
}

func (ip *interp) dispatchCommand(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if builtinNames[name] {
		return ip.runBuiltin(name, args, stdin, stdout, stderr)
	}

	if fn, ok := ip.env.Function(name); ok {
		ip.env.PushLocalScope()
		defer ip.env.PopLocalScope()

		savedPositional := ip.env.Positional()
		ip.env.SetPositional(args)

		defer ip.env.SetPositional(savedPositional)

		code, err := ip.withStreams(stdin, stdout, stderr, func() (int, error) {
			return ip.runCommand(fn, stdin, stdout, stderr)
		})

		var rs returnSignal
		if errors.As(err, &rs) {
			return rs.code, nil
		}

		return code, err
	}

	if name == "sh" || name == "bash" {
		return ip.runNestedShell(args, stdin, stdout, stderr), nil
	}

	if code, handled := ip.dispatch(name, args, stdin, stdout, stderr); handled {
		return code, nil
	}

	fmt.Fprintf(stderr, "sh: %s: not found\n", name)

	return 127, nil
}

func (ip *interp) runNestedShell(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) >= 2 && args[0] == "-c" {
		return Run(args[1], args[2:], stdin, stdout, stderr)
	}

	if len(args) >= 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "sh: %s: %v\n", args[0], err)

			return 127
		}

		return Run(string(data), args[1:], stdin, stdout, stderr)
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return 1
	}

	return Run(string(data), nil, stdin, stdout, stderr)
}

func (ip *interp) runIf(c *If, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return ip.withStreams(stdin, stdout, stderr, func() (int, error) {
		code, err := ip.runProgram(c.Cond)
		if err != nil {
			return code, err
		}

		if code == 0 {
			return ip.runProgram(c.Then)
		}

		for _, elif := range c.Elif {
			code, err = ip.runProgram(elif.Cond)
			if err != nil {
				return code, err
			}

			if code == 0 {
				return ip.runProgram(elif.Then)
			}
		}

		if c.Else != nil {
			return ip.runProgram(c.Else)
		}

		return 0, nil
	})
}

func (ip *interp) runFor(c *For, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return ip.withStreams(stdin, stdout, stderr, func() (int, error) {
		var items []string

		if c.Words != nil {
			for _, w := range c.Words {
				fields, err := ip.expandWord(w)
				if err != nil {
					return 1, err
				}

				items = append(items, fields...)
			}
		} else {
			items = ip.env.Positional()
		}

		code := 0

		for _, item := range items {
			ip.env.Set(c.Var, item)

			c2, err := ip.runProgram(c.Body)
			code = c2

			if err != nil {
				var bs breakSignal
				if errors.As(err, &bs) {
					break
				}

				var cs continueSignal
				if errors.As(err, &cs) {
					continue
				}

				return code, err
			}
		}

		return code, nil
	})
}

func (ip *interp) runWhile(c *While, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return ip.withStreams(stdin, stdout, stderr, func() (int, error) {
		code := 0

		for {
			condCode, err := ip.runProgram(c.Cond)
			if err != nil {
				return condCode, err
			}

			if condCode != 0 {
				break
			}

			c2, err := ip.runProgram(c.Body)
			code = c2

			if err != nil {
				var bs breakSignal
				if errors.As(err, &bs) {
					break
				}

				var cs continueSignal
				if errors.As(err, &cs) {
					continue
				}

				return code, err
			}
		}

		return code, nil
	})
}

func (ip *interp) runUntil(c *Until, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return ip.withStreams(stdin, stdout, stderr, func() (int, error) {
		code := 0

		for {
			condCode, err := ip.runProgram(c.Cond)
			if err != nil {
				return condCode, err
			}

			if condCode == 0 {
				break
			}

			c2, err := ip.runProgram(c.Body)
			code = c2

			if err != nil {
				var bs breakSignal
				if errors.As(err, &bs) {
					break
				}

				var cs continueSignal
				if errors.As(err, &cs) {
					continue
				}

				return code, err
			}
		}

		return code, nil
	})
}

func (ip *interp) runCase(c *Case, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return ip.withStreams(stdin, stdout, stderr, func() (int, error) {
		fields, err := ip.expandWord(c.Word)
		if err != nil {
			return 1, err
		}

		word := strings.Join(fields, " ")

		for _, item := range c.Items {
			for _, pat := range item.Patterns {
				patFields, err := ip.expandWord(pat)
				if err != nil {
					return 1, err
				}

				pattern := strings.Join(patFields, " ")

				if matched, _ := filepath.Match(pattern, word); matched || pattern == word {
					return ip.runProgram(item.Body)
				}
			}
		}

		return 0, nil
	})
}

func (ip *interp) runSubshell(c *Subshell, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	sub := &interp{
		env:      cloneEnvForSubshell(ip.env),
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		workDir:  ip.workDir,
		dispatch: ip.dispatch,
	}

	return sub.runProgram(c.Body)
}

// evalArithmetic evaluates a restricted integer expression: +, -, *, /, %
// and comparisons, left to right with standard precedence, over expanded
// variable references and integer literals.
func (ip *interp) evalArithmetic(expr string) (int64, error) {
	words := strings.Fields(expr)

	resolved := make([]string, len(words))

	for i, w := range words {
		if n, err := strconv.ParseInt(w, 10, 64); err == nil {
			resolved[i] = strconv.FormatInt(n, 10)

			continue
		}

		if isArithOperator(w) {
			resolved[i] = w

			continue
		}

		resolved[i] = ip.lookupVar(w)
		if resolved[i] == "" {
			resolved[i] = "0"
		}
	}

	return evalArithTokens(strings.Join(resolved, " "))
}

func isArithOperator(s string) bool {
	switch s {
	case "+", "-", "*", "/", "%", "(", ")", "<", ">", "<=", ">=", "==", "!=":
		return true
	default:
		return false
	}
}
