// Package runtime drives the Wasmtime engine: it instantiates the cached
// guest toolbox module into a fresh store per call, wires up WASI (argv,
// env, preopened directories, fuel, a memory ceiling), runs it to
// completion or until a timeout/fuel-exhaustion backstop fires, and
// collects stdout/stderr/exit code.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"

	"github.com/calvinalkan/agent-sandbox/sandbox/bridge"
	"github.com/calvinalkan/agent-sandbox/sandbox/cache"
)

// Mount describes a directory made available to the guest via a WASI
// preopen.
type Mount struct {
	HostPath  string
	GuestPath string
	Writable  bool
}

// Request describes a single guest invocation.
type Request struct {
	// Command is the applet name; it becomes both argv[0] and the
	// TOOLBOX_CMD environment variable so the guest's BusyBox-style
	// dispatcher can resolve it regardless of how it's invoked.
	Command string
	Args    []string
	EnvVars map[string]string
	WorkDir Mount
	Mounts  []Mount

	Timeout          time.Duration
	MemoryLimitBytes uint64
	FuelLimit        uint64

	// Bridge backs the guest's __sandbox_fetch host import. A nil Bridge
	// still gets linked so the guest's fetch call resolves to a disabled
	// response instead of a missing-import instantiation failure.
	Bridge *bridge.Bridge
}

// Result is the outcome of a guest invocation.
type Result struct {
	ExitCode     int
	Stdout       []byte
	Stderr       []byte
	FuelConsumed uint64
}

// storeState combines the WASI context with the memory limiter, mirroring
// the original Rust runtime's SandboxState.
type storeState struct {
	wasi   *wasmtime.WasiConfig
	limits *wasmtime.StoreLimits
}

// Run instantiates the given toolbox module and executes req inside it,
// racing a wall-clock timeout against the synchronous Wasmtime call the same
// way the original does it with tokio::spawn_blocking + tokio::time::timeout:
// the Wasmtime call runs on its own goroutine, and the caller goroutine
// selects between that finishing and the timeout/ctx firing first. When the
// timeout wins, the store is abandoned: the goroutine keeps running until
// the guest exits or exhausts its fuel limit, which is set from
// Request.FuelLimit independently of the timeout.
func Run(ctx context.Context, wasmBytes []byte, req Request, debugf func(string, ...any)) (Result, error) {
	module, err := cache.Get(wasmBytes)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: %w", err)
	}

	type outcome struct {
		result Result
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, runErr := runSync(ctx, module, req, debugf)
		done <- outcome{result: result, err: runErr}
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-timer.C:
		if debugf != nil {
			debugf("runtime: wall-clock timeout after %s for %q", timeout, req.Command)
		}

		return Result{}, errTimeout(timeout)
	case <-ctx.Done():
		return Result{}, fmt.Errorf("runtime: %w", ctx.Err())
	}
}

// ErrTimeout is returned when either the wall-clock timeout or fuel
// exhaustion stops an invocation. Use errors.Is to check for it; the
// original message distinguishes the two causes but both map to the same
// sentinel so callers only need to branch once.
var ErrTimeout = errors.New("execution timed out")

func errTimeout(d time.Duration) error {
	return fmt.Errorf("%w after %s", ErrTimeout, d)
}

func runSync(ctx context.Context, mod *cache.Module, req Request, debugf func(string, ...any)) (Result, error) {
	argv := append([]string{req.Command}, req.Args...)

	stdoutFile, err := os.CreateTemp("", "agent-sandbox-stdout-*")
	if err != nil {
		return Result{}, fmt.Errorf("runtime: creating stdout capture file: %w", err)
	}
	defer os.Remove(stdoutFile.Name())
	defer stdoutFile.Close()

	stderrFile, err := os.CreateTemp("", "agent-sandbox-stderr-*")
	if err != nil {
		return Result{}, fmt.Errorf("runtime: creating stderr capture file: %w", err)
	}
	defer os.Remove(stderrFile.Name())
	defer stderrFile.Close()

	wasiConfig := wasmtime.NewWasiConfig()
	wasiConfig.SetArgv(argv)
	wasiConfig.SetStdoutFile(stdoutFile.Name())
	wasiConfig.SetStderrFile(stderrFile.Name())

	env := make([][2]string, 0, len(req.EnvVars)+1)
	env = append(env, [2]string{"TOOLBOX_CMD", req.Command})

	for k, v := range req.EnvVars {
		env = append(env, [2]string{k, v})
	}

	wasiConfig.SetEnv(envKeys(env), envValues(env))

	if err := wasiConfig.PreopenDir(req.WorkDir.HostPath, "/work"); err != nil {
		return Result{}, fmt.Errorf("runtime: preopening work dir %q: %w", req.WorkDir.HostPath, err)
	}

	for _, m := range req.Mounts {
		// Read-only enforcement for non-writable mounts happens one layer up,
		// in sandbox.Sandbox.Exec via fsguard before a path ever reaches here;
		// WasiConfig.PreopenDir itself grants the preopen full read/write.
		if err := wasiConfig.PreopenDir(m.HostPath, m.GuestPath); err != nil {
			return Result{}, fmt.Errorf("runtime: preopening mount %q: %w", m.HostPath, err)
		}
	}

	store := wasmtime.NewStore(mod.Engine)
	store.SetWasi(wasiConfig)

	limiter := wasmtime.NewStoreLimits(wasmtime.StoreLimitsConfig{
		MemorySize: int64(req.MemoryLimitBytes),
	})
	store.Limiter(limiter)

	fuelLimit := req.FuelLimit
	if fuelLimit == 0 {
		fuelLimit = 1_000_000_000
	}

	if err := store.AddFuel(fuelLimit); err != nil {
		return Result{}, fmt.Errorf("runtime: setting fuel: %w", err)
	}

	linker := wasmtime.NewLinker(mod.Engine)
	if err := linker.DefineWasi(); err != nil {
		return Result{}, fmt.Errorf("runtime: linking WASI: %w", err)
	}

	fetchBridge := req.Bridge
	if fetchBridge == nil {
		fetchBridge = bridge.New(nil, debugf)
	}

	if err := bridge.DefineHostFuncs(ctx, linker, fetchBridge); err != nil {
		return Result{}, fmt.Errorf("runtime: linking fetch bridge: %w", err)
	}

	instance, err := linker.Instantiate(store, mod.Module)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: instantiating module: %w", err)
	}

	start := instance.GetFunc(store, "_start")
	if start == nil {
		return Result{}, internalErrorf("runtime", "module has no _start export")
	}

	exitCode := 0

	_, callErr := start.Call(store)
	if callErr != nil {
		var trap *wasmtime.Trap
		if errors.As(callErr, &trap) {
			if code, ok := trap.ExitStatus(); ok {
				exitCode = code
			} else if isOutOfFuel(trap) {
				return Result{}, errTimeout(req.Timeout)
			} else {
				return Result{}, fmt.Errorf("runtime: trap: %w", callErr)
			}
		} else {
			return Result{}, fmt.Errorf("runtime: %w", callErr)
		}
	}

	fuelConsumed, _ := store.FuelConsumed()

	if debugf != nil {
		debugf("runtime: %q exited %d, fuel consumed %d/%d", req.Command, exitCode, fuelConsumed, fuelLimit)
	}

	stdout, err := readCaptureFile(stdoutFile)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: reading stdout capture: %w", err)
	}

	stderr, err := readCaptureFile(stderrFile)
	if err != nil {
		return Result{}, fmt.Errorf("runtime: reading stderr capture: %w", err)
	}

	return Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr, FuelConsumed: fuelConsumed}, nil
}

func isOutOfFuel(trap *wasmtime.Trap) bool {
	code := trap.Code()

	return code != nil && *code == wasmtime.OutOfFuel
}

// captureLimitBytes bounds how much of a guest's stdout/stderr the host
// keeps, mirroring the original runtime's MemoryOutputPipe(1024*1024):
// overflow is truncated silently, never surfaced as an error.
const captureLimitBytes = 1 << 20

func readCaptureFile(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(io.LimitReader(f, captureLimitBytes))
}

func envKeys(env [][2]string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		out[i] = kv[0]
	}

	return out
}

func envValues(env [][2]string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		out[i] = kv[1]
	}

	return out
}

func internalErrorf(op, format string, args ...any) error {
	return fmt.Errorf("%s: internal error: "+format, append([]any{op}, args...)...)
}
