// Package applets implements the individual command-line tools exposed by
// the guest toolbox binary, matching sandbox.AvailableCommands. Each applet
// is a pure function over argv/stdin/stdout/stderr, the same shape the
// guest shell interpreter (package shell) uses to run pipeline stages
// in-process without forking.
package applets

import (
	"fmt"
	"io"
)

// Func is the signature every applet implements: read args and stdin, write
// to stdout/stderr, return a process exit code.
type Func func(args []string, stdin io.Reader, stdout, stderr io.Writer) int

// Table maps a command name to its implementation. main.go and the shell
// executor both dispatch through this table so "toolbox cat" and `cat` run
// inside a shell script behave identically.
var Table map[string]Func

// Table is filled from table in init because "which" looks commands up in
// Table, and a direct initializer would make that an initialization cycle.
func init() { Table = table }

var table = map[string]Func{
	"cat":       Cat,
	"head":      Head,
	"tail":      Tail,
	"touch":     Touch,
	"grep":      Grep,
	"find":      Find,
	"sort":      Sort,
	"uniq":      Uniq,
	"cut":       Cut,
	"tr":        Tr,
	"wc":        Wc,
	"rev":       Rev,
	"nl":        Nl,
	"base64":    Base64,
	"sha256sum": Sha256sum,
	"xxd":       Xxd,
	"ls":        Ls,
	"mkdir":     Mkdir,
	"cp":        Cp,
	"mv":        Mv,
	"rm":        Rm,
	"stat":      Stat,
	"echo":      Echo,
	"printf":    Printf,
	"env":       Env,
	"basename":  Basename,
	"dirname":   Dirname,
	"seq":       Seq,
	"sleep":     Sleep,
	"which":     Which,
	"date":      Date,
	"true":      True,
	"false":     False,
	"test":      Test,
	"[":         Test,
}

// ExtraCommands names toolbox-recognized commands dispatched outside Table:
// "curl" goes through the host fetch bridge (package curlapplet, kept out
// of this package since it needs go:wasmimport and this package does not)
// and "sh"/"bash" enter the shell interpreter (package shell). Both are
// wired together only in guest/main.go.
var ExtraCommands = []string{"curl", "sh", "bash"}

func fail(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, format+"\n", args...)

	return 1
}
