package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

const (
	// binaryName is the canonical name of the agentsandbox binary.
	binaryName = "agentsandbox"

	// exitCodeSIGINT is the exit code when the process is interrupted by SIGINT (128 + 2).
	exitCodeSIGINT = 130

	// cleanupTimeout is how long to wait for graceful shutdown before force-killing.
	cleanupTimeout = 10 * time.Second
)

// ErrSilentExit signals a non-zero exit without an accompanying error
// message (the subcommand already printed what the user needs to see).
var ErrSilentExit = errors.New("silent exit")

// subcommand is one of "run", "exec", "diff", "check".
type subcommand struct {
	name  string
	short string
	exec  func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string) int
}

// Run is the main entry point that isolates the entire logic from global
// state like stdin/stdout/stderr and env. Returns the exit code. sigCh can
// be nil if signal handling is not needed (e.g., in tests).
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	subcommands := []subcommand{
		{name: "run", short: "Run sh inside the sandbox (stdin is empty; not interactive)", exec: runRunCommand},
		{name: "exec", short: "Run one command inside the sandbox", exec: runExecCommand},
		{name: "diff", short: "Show filesystem changes in the sandbox work dir", exec: runDiffCommand},
		{name: "check", short: "Validate config and toolbox availability", exec: runCheckCommand},
	}

	if len(args) <= 1 {
		printUsage(stdout, subcommands)

		return 0
	}

	switch args[1] {
	case "-h", "--help", "help":
		printUsage(stdout, subcommands)

		return 0
	case "-v", "--version", "version":
		fprintf(stdout, "%s\n", formatVersion())

		return 0
	}

	var matched *subcommand

	for i := range subcommands {
		if subcommands[i].name == args[1] {
			matched = &subcommands[i]

			break
		}
	}

	if matched == nil {
		fprintError(stderr, fmt.Errorf("unknown subcommand %q", args[1]))
		printUsage(stderr, subcommands)

		return 1
	}

	killCtx, kill := context.WithCancel(context.Background())
	defer kill()

	termCtx, terminate := context.WithCancel(killCtx)
	defer terminate()

	done := make(chan int, 1)

	go func() {
		done <- matched.exec(termCtx, stdin, stdout, stderr, args[2:], env)
	}()

	if sigCh == nil {
		return <-done
	}

	select {
	case code := <-done:
		return code
	case <-sigCh:
		fprintln(stderr, "Interrupted, waiting up to 10s for cleanup... (Ctrl+C again to force exit)")
		terminate()
	}

	select {
	case code := <-done:
		fprintln(stderr, "Cleanup complete.")

		return code
	case <-time.After(cleanupTimeout):
		fprintln(stderr, "Cleanup timed out, forced exit.")
		kill()
		<-done

		return exitCodeSIGINT
	case <-sigCh:
		fprintln(stderr, "Forced exit.")
		kill()
		<-done

		return exitCodeSIGINT
	}
}

const usageHelp = `agentsandbox - capability-confined WASM sandbox for agentic coding workflows

Usage: agentsandbox <subcommand> [flags] [args]

Subcommands:
  run    Run sh inside the sandbox (stdin is empty; not interactive)
  exec   Run one command inside the sandbox
  diff   Show filesystem changes in the sandbox work dir
  check  Validate config and toolbox availability

Global flags (per subcommand):
  -h, --help               Show help
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
      --mount <spec>       Add a mount, host:guest[:rw] (repeatable)
      --fetch              Enable outbound networking (default: false)
      --allow-domain <p>   Add an allowed fetch domain pattern (repeatable)
      --block-domain <p>   Add a blocked fetch domain pattern (repeatable)
      --timeout <secs>     Per-command wall clock timeout
      --memory-limit-mb <n> WASM linear memory limit in MiB
      --fuel-limit <n>     Wasmtime fuel limit per command
      --debug              Print sandbox startup details to stderr

Examples:
  agentsandbox exec cat README.md
  agentsandbox exec --fetch --allow-domain api.example.com curl https://api.example.com
  agentsandbox run
  agentsandbox diff
  agentsandbox check`

func printUsage(output io.Writer, _ []subcommand) {
	fprintln(output, usageHelp)
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintf(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}

func fprintError(out io.Writer, err error) {
	if isTerminal() {
		fprintln(out, "\033[31magentsandbox: error:\033[0m", err)
	} else {
		fprintln(out, "agentsandbox: error:", err)
	}
}

func formatVersion() string {
	if version == "source" {
		return fmt.Sprintf("agentsandbox (built from source, %s)", date)
	}

	return fmt.Sprintf("agentsandbox %s (%s, %s)", version, commit, date)
}

func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return (stat.Mode() & os.ModeCharDevice) != 0
}

// sharedFlags registers the flags every subcommand accepts for locating and
// overriding sandbox configuration.
func sharedFlags(flags *flag.FlagSet) {
	flags.BoolP("help", "h", false, "Show help")
	flags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flags.StringP("config", "c", "", "Use specified config `file`")
	flags.StringArray("mount", nil, "Add a mount, host:guest[:rw]")
	flags.Bool("fetch", false, "Enable outbound networking")
	flags.StringArray("allow-domain", nil, "Add an allowed fetch domain pattern")
	flags.StringArray("block-domain", nil, "Add a blocked fetch domain pattern")
	flags.Int("timeout", 0, "Per-command wall clock timeout in seconds")
	flags.Int("memory-limit-mb", 0, "WASM linear memory limit in MiB")
	flags.Uint64("fuel-limit", 0, "Wasmtime fuel limit per command")
	flags.Bool("debug", false, "Print sandbox startup details to stderr")
}

// loadSandboxConfig runs LoadConfig against flags already parsed by a
// subcommand and resolves the result into a usable [sandbox.Config], along
// with the debug logger the caller asked for.
func loadSandboxConfig(flags *flag.FlagSet, env map[string]string, stderr io.Writer) (fileCfg FileConfig, debug *DebugLogger, err error) {
	cwd, _ := flags.GetString("cwd")
	configPath, _ := flags.GetString("config")

	fileCfg, err = LoadConfig(LoadConfigInput{
		WorkDirOverride: cwd,
		ConfigPath:      configPath,
		EnvVars:         env,
		CLIFlags:        flags,
	})
	if err != nil {
		return FileConfig{}, nil, err
	}

	debugEnabled, _ := flags.GetBool("debug")

	if debugEnabled {
		debug = NewDebugLogger(stderr)
	} else {
		debug = NewDebugLogger(nil)
	}

	debugConfigLoading(debug, fileCfg)

	return fileCfg, debug, nil
}
