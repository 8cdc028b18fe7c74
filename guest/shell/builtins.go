package shell

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/calvinalkan/agent-sandbox/guest/applets"
)

func (ip *interp) runBuiltin(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	switch name {
	case "true", ":":
		return 0, nil
	case "false":
		return 1, nil
	case "exit":
		code := ip.env.LastStatus
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				code = n
			}
		}

		return code, returnSignal{code: code}
	case "return":
		code := 0
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				code = n
			}
		}

		return code, returnSignal{code: code}
	case "break":
		levels := 1
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				levels = n
			}
		}

		return 0, breakSignal{levels: levels}
	case "continue":
		levels := 1
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				levels = n
			}
		}

		return 0, continueSignal{levels: levels}
	case "cd":
		return ip.builtinCd(args, stderr)
	case "export":
		return ip.builtinExport(args, stdout)
	case "unset":
		for _, name := range args {
			ip.env.Unset(name)
		}

		return 0, nil
	case "set":
		return ip.builtinSet(args)
	case "read":
		return ip.builtinRead(args, stdin)
	case "test", "[":
		return applets.Test(args, stdin, stdout, stderr), nil
	case "shift":
		n := 1
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil {
				n = v
			}
		}

		ip.env.Shift(n)

		return 0, nil
	case "local":
		return ip.builtinLocal(args)
	case "source", ".":
		return ip.builtinSource(args, stdin, stdout, stderr)
	case "eval":
		return ip.builtinEval(args, stdin, stdout, stderr)
	case "type":
		return ip.builtinType(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "sh: %s: not found\n", name)

		return 127, nil
	}
}

func (ip *interp) builtinCd(args []string, stderr io.Writer) (int, error) {
	dir := "/"
	if home, ok := ip.env.Get("HOME"); ok && home != "" {
		dir = home
	}

	if len(args) > 0 {
		dir = args[0]
	}

	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(stderr, "cd: %s: %v\n", dir, err)

		return 1, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		ip.env.Set("PWD", cwd)
	}

	return 0, nil
}

func (ip *interp) builtinExport(args []string, stdout io.Writer) (int, error) {
	if len(args) == 0 {
		for _, kv := range ip.env.ExportedVars() {
			fmt.Fprintf(stdout, "declare -x %s\n", kv)
		}

		return 0, nil
	}

	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok {
			ip.env.Export(name, &value)
		} else {
			ip.env.Export(arg, nil)
		}
	}

	return 0, nil
}

func (ip *interp) builtinSet(args []string) (int, error) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		ip.env.SetPositional(args)
	}

	return 0, nil
}

func (ip *interp) builtinRead(args []string, stdin io.Reader) (int, error) {
	if len(args) == 0 {
		args = []string{"REPLY"}
	}

	line, err := readLine(stdin)
	if err != nil && line == "" {
		return 1, nil
	}

	fields := strings.Fields(line)

	for i, name := range args {
		if i < len(fields) {
			ip.env.Set(name, fields[i])
		} else if i == len(args)-1 && len(fields) > i {
			ip.env.Set(name, strings.Join(fields[i:], " "))
		} else {
			ip.env.Set(name, "")
		}
	}

	return 0, nil
}

func readLine(r io.Reader) (string, error) {
	var sb strings.Builder

	buf := make([]byte, 1)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}

			sb.WriteByte(buf[0])
		}

		if err != nil {
			return sb.String(), err
		}
	}
}

func (ip *interp) builtinLocal(args []string) (int, error) {
	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok {
			ip.env.DeclareLocal(name)
			ip.env.Set(name, value)
		} else {
			ip.env.DeclareLocal(arg)
		}
	}

	return 0, nil
}

func (ip *interp) builtinSource(args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "source: %s: %v\n", args[0], err)

		return 1, nil
	}

	prog, err := Parse(string(data))
	if err != nil {
		fmt.Fprintf(stderr, "source: %v\n", err)

		return 1, nil
	}

	return ip.withStreams(stdin, stdout, stderr, func() (int, error) { return ip.runProgram(prog) })
}

func (ip *interp) builtinEval(args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	src := strings.Join(args, " ")

	prog, err := Parse(src)
	if err != nil {
		fmt.Fprintf(stderr, "eval: %v\n", err)

		return 1, nil
	}

	return ip.withStreams(stdin, stdout, stderr, func() (int, error) { return ip.runProgram(prog) })
}

func (ip *interp) builtinType(args []string, stdout, stderr io.Writer) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}

	exitCode := 0

	for _, name := range args {
		switch {
		case builtinNames[name]:
			fmt.Fprintf(stdout, "%s is a shell builtin\n", name)
		default:
			if _, ok := ip.env.Function(name); ok {
				fmt.Fprintf(stdout, "%s is a shell function\n", name)
			} else if _, ok := applets.Table[name]; ok {
				fmt.Fprintf(stdout, "%s is /usr/bin/%s\n", name, name)
			} else {
				fmt.Fprintf(stderr, "type: %s: not found\n", name)
				exitCode = 1
			}
		}
	}

	return exitCode, nil
}
