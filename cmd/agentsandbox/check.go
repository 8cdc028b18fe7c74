package main

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// runCheckCommand implements "agentsandbox check": resolve configuration,
// verify the guest toolbox binary is embedded, and construct (then
// immediately destroy) a Sandbox to confirm the work dir and mounts
// validate. Exits 0 if everything checks out, 1 otherwise, printing what
// failed.
func runCheckCommand(_ context.Context, _ io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	flags := flag.NewFlagSet("check", flag.ContinueOnError)
	sharedFlags(flags)
	flags.BoolP("quiet", "q", false, "Quiet mode, no output")

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if help, _ := flags.GetBool("help"); help {
		fprintln(stdout, "Usage: agentsandbox check [flags]")

		return 0
	}

	quiet, _ := flags.GetBool("quiet")

	fileCfg, debug, err := loadSandboxConfig(flags, env, stderr)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	cfg := fileCfg.ToSandboxConfig(debug.Debugf)
	debugResolvedConfig(debug, cfg)

	sb, err := sandbox.New(&cfg)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}
	defer sb.Destroy()

	if !sandbox.ToolboxAvailable() {
		fprintError(stderr, sandbox.ErrToolboxNotAvailable)

		return 1
	}

	if !quiet {
		fprintln(stdout, "ok: config valid, work dir accessible, toolbox embedded")
		fprintf(stdout, "sandbox id: %s\n", sb.ID())
		fprintf(stdout, "available commands: %d\n", len(sandbox.AvailableCommands))
	}

	return 0
}
