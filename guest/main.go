// Command toolbox is the guest-side multicall binary the sandbox host
// executes inside a wasmtime WASM instance. It dispatches BusyBox-style:
// the command to run is read from the TOOLBOX_CMD environment variable
// (set by the host per invocation) or, failing that, from argv[0]/argv[1],
// and routed to the matching entry in applets.Table, the shell interpreter
// for "sh"/"bash", the curlapplet fetch bridge for "curl", or a not-found
// error.
//
// This binary only ever targets GOOS=wasip1 GOARCH=wasm, so unlike
// applets and shell it is free to import curlapplet, whose go:wasmimport
// declarations would otherwise break those packages' ordinary
// cross-platform buildability. None of the host-side module's third-party
// dependencies (wasmtime-go, fasthttp, google/uuid, x/time) support wasm,
// so this tree stays on the standard library throughout.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/calvinalkan/agent-sandbox/guest/applets"
	"github.com/calvinalkan/agent-sandbox/guest/curlapplet"
	"github.com/calvinalkan/agent-sandbox/guest/shell"
)

func main() {
	// Let a "curl" invoked from inside an "sh"/"bash" script reach the fetch
	// bridge too, not just a top-level "toolbox curl". package shell cannot
	// import curlapplet directly (curlapplet pulls in go:wasmimport via
	// package fetch, which would poison shell's portability), so main.go
	// wires the two together instead.
	shell.ExternalDispatch = func(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, bool) {
		if name != "curl" {
			return 0, false
		}

		return curlapplet.Run(args, stdin, stdout, stderr), true
	}

	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(argv []string, stdin *os.File, stdout, stderr *os.File) int {
	// The host preopens the sandbox work directory at "/work"; chdir into
	// it so scripts can use paths relative to it and so the shell
	// interpreter's pipeline temp files land there. Best-effort: a direct
	// invocation of this binary outside the sandbox runtime has no "/work"
	// to chdir into.
	_ = os.Chdir("/work")

	cmd, toolArgs := resolveCommand(argv)

	if cmd == "" {
		fmt.Fprintln(stderr, "Usage: toolbox <command> [args...]")
		fmt.Fprintln(stderr, "Available commands:")
		printAvailableCommands(stderr)

		return 1
	}

	switch cmd {
	case "sh", "bash":
		return shell.Main(toolArgs, stdin, stdout, stderr)
	case "curl":
		return curlapplet.Run(toolArgs, stdin, stdout, stderr)
	default:
		if fn, ok := applets.Table[cmd]; ok {
			return fn(toolArgs, stdin, stdout, stderr)
		}

		fmt.Fprintf(stderr, "%s: command not found\n", cmd)

		return 127
	}
}

// resolveCommand determines which tool to run and its arguments, following
// the same precedence the host's TOOLBOX_CMD convention expects: the
// environment variable first, then argv[0]'s basename (shifting past a
// literal "toolbox" multicall invocation), then argv[1].
func resolveCommand(argv []string) (string, []string) {
	if cmd := os.Getenv("TOOLBOX_CMD"); cmd != "" {
		return cmd, argv[1:]
	}

	if len(argv) == 0 {
		return "", nil
	}

	name := filepath.Base(argv[0])
	if name != "toolbox" && name != "" {
		return name, argv[1:]
	}

	if len(argv) < 2 {
		return "", nil
	}

	return argv[1], argv[2:]
}

func printAvailableCommands(stderr *os.File) {
	names := make([]string, 0, len(applets.Table)+len(applets.ExtraCommands))
	for name := range applets.Table {
		names = append(names, name)
	}

	names = append(names, applets.ExtraCommands...)

	for _, name := range names {
		fmt.Fprintf(stderr, "  %s\n", name)
	}
}
