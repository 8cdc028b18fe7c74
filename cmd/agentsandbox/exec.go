package main

import (
	"context"
	"errors"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// runExecCommand implements "agentsandbox exec <command> [args...]": build a
// Sandbox from the resolved config and run exactly one command inside it,
// streaming the captured stdout/stderr through once the guest exits.
func runExecCommand(ctx context.Context, _ io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	flags := flag.NewFlagSet("exec", flag.ContinueOnError)
	flags.SetInterspersed(false)
	sharedFlags(flags)

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if help, _ := flags.GetBool("help"); help {
		fprintln(stdout, "Usage: agentsandbox exec [flags] <command> [args...]")

		return 0
	}

	commandAndArgs := flags.Args()
	if len(commandAndArgs) == 0 {
		fprintError(stderr, errNoCommand)

		return 1
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

	result, err := sb.Exec(ctx, commandAndArgs[0], commandAndArgs[1:])
	if err != nil {
		fprintError(stderr, err)

		return exitCodeForSandboxError(err)
	}

	_, _ = stdout.Write(result.Stdout)
	_, _ = stderr.Write(result.Stderr)

	return result.ExitCode
}

// runRunCommand implements "agentsandbox run": a convenience alias that execs
// "sh" with no arguments inside the sandbox's toolbox. The guest's stdin is
// always empty, so the shell reads an empty script and exits; the session is
// not interactive.
func runRunCommand(ctx context.Context, _ io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	sharedFlags(flags)

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if help, _ := flags.GetBool("help"); help {
		fprintln(stdout, "Usage: agentsandbox run [flags]")

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

	result, err := sb.Exec(ctx, "sh", nil)
	if err != nil {
		fprintError(stderr, err)

		return exitCodeForSandboxError(err)
	}

	_, _ = stdout.Write(result.Stdout)
	_, _ = stderr.Write(result.Stderr)

	return result.ExitCode
}

var errNoCommand = errors.New("no command specified")

// exitCodeForSandboxError maps a [*sandbox.Error] to a process exit code
// distinct from a plain command failure, so scripts invoking agentsandbox
// can tell "the sandbox itself failed" from "the command inside it exited
// non-zero".
func exitCodeForSandboxError(err error) int {
	var sbErr *sandbox.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Kind() {
		case sandbox.KindCommandNotFound:
			return 127
		case sandbox.KindTimeout:
			return 124
		}
	}

	return 1
}
