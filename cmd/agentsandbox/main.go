// Command agentsandbox is the host-side CLI for package sandbox: it builds a
// [sandbox.Config] from config files, CLI flags, and environment, then runs
// "run"/"exec"/"diff"/"check" subcommands against a [sandbox.Sandbox].
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// version, commit, and date are set via -ldflags at release build time;
// "source" is the default for a plain "go build"/"go run".
var (
	version = "source"
	commit  = "none"
	date    = "unknown"
)

func main() {
	sandbox.SetToolboxWasm(toolboxWasm)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	env := make(map[string]string, len(os.Environ()))

	for _, kv := range os.Environ() {
		key, value, ok := splitEnvEntry(kv)
		if !ok {
			continue
		}

		env[key] = value
	}

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh))
}

func splitEnvEntry(kv string) (key, value string, ok bool) {
	for i := range kv {
		if kv[i] == '=' {
			if i == 0 {
				return "", "", false
			}

			return kv[:i], kv[i+1:], true
		}
	}

	return "", "", false
}
