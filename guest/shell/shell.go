package shell

import (
	"io"
	"os"
)

// Main is the entry point guest/main.go wires up for the "sh" and "bash"
// toolbox commands. It matches applets.Func's signature so the shell
// interpreter plugs into the same dispatch table as every other tool:
//
//	sh -c "script" [args...]
//	sh script.sh [args...]
//	sh                       (reads the script from stdin)
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	switch {
	case len(args) >= 2 && args[0] == "-c":
		return Run(args[1], args[2:], stdin, stdout, stderr)
	case len(args) >= 1:
		return runScriptFile(args[0], args[1:], stdin, stdout, stderr)
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return 1
		}

		return Run(string(data), nil, stdin, stdout, stderr)
	}
}

func runScriptFile(path string, extraArgs []string, stdin io.Reader, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 127
	}

	return Run(string(data), extraArgs, stdin, stdout, stderr)
}
