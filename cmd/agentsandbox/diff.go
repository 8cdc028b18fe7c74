package main

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// runDiffCommand implements "agentsandbox diff": construct a Sandbox
// (snapshotting the work dir), run the given command if one is given, and
// print what changed since the snapshot. With no command the diff is taken
// right after the snapshot, so it only shows changes made to the work dir
// by something else in between.
func runDiffCommand(ctx context.Context, _ io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	flags := flag.NewFlagSet("diff", flag.ContinueOnError)
	flags.SetInterspersed(false)
	sharedFlags(flags)

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if help, _ := flags.GetBool("help"); help {
		fprintln(stdout, "Usage: agentsandbox diff [flags] [-- <command> [args...]]")

		return 0
	}

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

	commandAndArgs := flags.Args()
	if len(commandAndArgs) > 0 {
		result, execErr := sb.Exec(ctx, commandAndArgs[0], commandAndArgs[1:])
		if execErr != nil {
			fprintError(stderr, execErr)

			return exitCodeForSandboxError(execErr)
		}

		_, _ = stderr.Write(result.Stderr)
	}

	changes, err := sb.Diff()
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	if len(changes) == 0 {
		fprintln(stdout, "no changes")

		return 0
	}

	for _, c := range changes {
		fprintf(stdout, "%s %s\n", c.Kind, c.Path)
	}

	return 0
}
