package sandbox

//revive:disable:max-public-structs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/calvinalkan/agent-sandbox/sandbox/bridge"
	"github.com/calvinalkan/agent-sandbox/sandbox/fsguard"
	"github.com/calvinalkan/agent-sandbox/sandbox/overlay"
	"github.com/calvinalkan/agent-sandbox/sandbox/runtime"
)

// toolboxWasm is the compiled guest binary, embedded at build time by
// whichever package wires go:embed over the artifact produced by building
// guest/ with GOOS=wasip1 GOARCH=wasm. It is a package variable rather than
// a go:embed directive here so this package has no build-time dependency on
// the guest module actually being present (this package's tests construct
// Sandboxes with no toolbox installed); cmd/agentsandbox sets it via SetToolboxWasm
// during program initialization.
var toolboxWasm []byte

// SetToolboxWasm installs the compiled guest toolbox binary used by every
// subsequently constructed Sandbox in this process.
func SetToolboxWasm(wasmBytes []byte) {
	toolboxWasm = wasmBytes
}

// ToolboxAvailable reports whether a guest toolbox binary has been
// installed via [SetToolboxWasm]. [Sandbox.Exec] fails with
// [KindToolboxNotAvailable] when this is false.
func ToolboxAvailable() bool {
	return len(toolboxWasm) > 0
}

// Sandbox is a capability-confined WASM execution environment.
//
// A Sandbox must not be copied after first use. It is safe for concurrent
// use: each call to [Sandbox.Exec] instantiates its own Wasmtime store
// against the process-wide cached module (see package sandbox/cache), so
// concurrent Exec calls do not interfere with each other.
//
// Sandbox construction snapshots the work directory's content hashes (see
// package sandbox/overlay) so [Sandbox.Diff] can later report what changed.
// To pick up host filesystem changes made outside the sandbox (so they
// don't show up as spurious diff entries), construct a new Sandbox.
type Sandbox struct {
	noCopy noCopy

	id        string
	v         *validated
	overlay   *overlay.Overlay
	bridge    *bridge.Bridge
	destroyed atomic.Bool
	logger    *slog.Logger
}

type validated struct {
	cfg Config
	env Environment
}

// New constructs a Sandbox using an Environment derived from the current
// process (see [DefaultEnvironment]).
func New(cfg *Config) (*Sandbox, error) {
	env, err := DefaultEnvironment()
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating default environment: %w", err)
	}

	return NewWithEnvironment(cfg, env)
}

// NewWithEnvironment constructs a Sandbox using an explicit environment.
//
// cfg and env are deep-copied during construction, so subsequent
// modifications to the passed values do not affect the Sandbox.
func NewWithEnvironment(cfg *Config, env Environment) (*Sandbox, error) {
	clonedCfg := cloneConfig(cfg)
	env = cloneEnvironment(env)

	if err := validateConfigAndEnv(&clonedCfg, env); err != nil {
		return nil, fmt.Errorf("sandbox: validating: %w", err)
	}

	ov, err := overlay.New(clonedCfg.WorkDir)
	if err != nil {
		return nil, newError(KindIO, err, "snapshotting work dir %q", clonedCfg.WorkDir)
	}

	logger := clonedCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var br *bridge.Bridge
	if clonedCfg.FetchPolicy != nil {
		br = bridge.New(toBridgePolicy(clonedCfg.FetchPolicy), clonedCfg.Debugf)
	} else {
		br = bridge.New(nil, clonedCfg.Debugf)
	}

	id := uuid.NewString()
	logger.Info("sandbox created", "sandbox_id", id, "work_dir", clonedCfg.WorkDir)

	return &Sandbox{
		id:      id,
		v:       &validated{cfg: clonedCfg, env: env},
		overlay: ov,
		bridge:  br,
		logger:  logger,
	}, nil
}

// DefaultEnvironment returns an Environment derived from the current
// process: WorkDir from os.Getwd, HomeDir from os.UserHomeDir, HostEnv from
// os.Environ.
func DefaultEnvironment() (Environment, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return Environment{}, fmt.Errorf("get working directory: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, fmt.Errorf("get home directory: %w", err)
	}

	hostEnv := make(map[string]string, len(os.Environ()))

	for _, kv := range os.Environ() {
		key, value, ok := splitEnvEntry(kv)
		if !ok {
			continue
		}

		hostEnv[key] = value
	}

	return Environment{HomeDir: homeDir, WorkDir: workDir, HostEnv: hostEnv}, nil
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

// ID returns a unique identifier for this Sandbox instance, assigned at
// construction. It is primarily useful for correlating log lines and fetch
// bridge traces across a sandbox's lifetime.
func (s *Sandbox) ID() string {
	return s.id
}

// ExecResult is the outcome of [Sandbox.Exec].
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Exec runs command with args inside the sandbox's guest toolbox and
// returns its exit code and captured output. command is resolved by the
// guest's BusyBox-style applet dispatch (see package guest); an unknown
// command returns a [*Error] with [KindCommandNotFound] without ever
// instantiating the guest module.
//
// "curl" is special-cased: it is dispatched through [Sandbox.ExecCurl]
// instead of the plain applet path, so a sandbox with no fetch client
// configured rejects it with [KindNetworkingDisabled] up front rather than
// letting the guest's curl applet attempt and fail the request itself.
func (s *Sandbox) Exec(ctx context.Context, command string, args []string) (ExecResult, error) {
	if err := s.checkDestroyed(); err != nil {
		return ExecResult{}, err
	}

	if command == "curl" {
		return s.execCurl(ctx, args)
	}

	return s.runGuest(ctx, command, args)
}

// ExecJS is equivalent to Exec("node", ["-e", code]).
func (s *Sandbox) ExecJS(ctx context.Context, code string) (ExecResult, error) {
	return s.Exec(ctx, "node", []string{"-e", code})
}

// ExecCurl dispatches a curl-style argument vector to the guest's curl
// applet, failing fast with [KindNetworkingDisabled] when the sandbox has no
// fetch client configured rather than letting the guest applet report a
// less specific error.
func (s *Sandbox) ExecCurl(ctx context.Context, args []string) (ExecResult, error) {
	if err := s.checkDestroyed(); err != nil {
		return ExecResult{}, err
	}

	return s.execCurl(ctx, args)
}

func (s *Sandbox) execCurl(ctx context.Context, args []string) (ExecResult, error) {
	if !s.bridge.Enabled() {
		return ExecResult{}, ErrNetworkingDisabled
	}

	return s.runGuest(ctx, "curl", args)
}

// runGuest instantiates the guest toolbox and runs command via the
// Runtime Harness (sandbox/runtime), regardless of which applet command
// names.
func (s *Sandbox) runGuest(ctx context.Context, command string, args []string) (ExecResult, error) {
	if !IsAvailable(command) {
		return ExecResult{}, newError(KindCommandNotFound, nil, "%q", command)
	}

	if len(toolboxWasm) == 0 {
		return ExecResult{}, ErrToolboxNotAvailable
	}

	cfg := s.v.cfg

	mounts := make([]runtime.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		mounts = append(mounts, runtime.Mount{HostPath: m.HostPath, GuestPath: m.GuestPath, Writable: m.Writable})
	}

	result, err := runtime.Run(ctx, toolboxWasm, runtime.Request{
		Command:          command,
		Args:             args,
		EnvVars:          cfg.EnvVars,
		WorkDir:          runtime.Mount{HostPath: cfg.WorkDir, GuestPath: "/work", Writable: true},
		Mounts:           mounts,
		Timeout:          cfg.Timeout,
		MemoryLimitBytes: cfg.MemoryLimitBytes,
		FuelLimit:        cfg.FuelLimit,
		Bridge:           s.bridge,
	}, cfg.Debugf)
	if err != nil {
		return ExecResult{}, classifyRuntimeError(err)
	}

	return ExecResult{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}, nil
}

// FetchRequest is the input to [Sandbox.Fetch], mirroring the wire shape the
// guest's curl applet and fetch bridge exchange with the host (see package
// sandbox/bridge).
type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    *string
}

// FetchResult is the outcome of [Sandbox.Fetch]. A policy rejection or
// network-level failure (DNS, TLS, connection refused) is reported via OK
// being false and Error set, not a Go error; a Go error is only returned for
// Destroyed/NetworkingDisabled or an unexpected bridge failure.
type FetchResult struct {
	Status  uint16
	Headers map[string]string
	Body    string
	OK      bool
	Error   string
}

// Fetch issues a single HTTP request through the sandbox's fetch bridge,
// the same path the guest's curl applet and any future networked applet
// use, enforcing the same [FetchPolicy].
func (s *Sandbox) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if err := s.checkDestroyed(); err != nil {
		return FetchResult{}, err
	}

	if !s.bridge.Enabled() {
		return FetchResult{}, ErrNetworkingDisabled
	}

	resp, err := s.bridge.Do(ctx, bridge.Request{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.Headers,
		Body:    req.Body,
	})
	if err != nil {
		return FetchResult{}, newError(KindFetch, err, "fetch %q", req.URL)
	}

	return FetchResult{Status: resp.Status, Headers: resp.Headers, Body: resp.Body, OK: resp.OK, Error: resp.Error}, nil
}

// ReadFile reads a file from the sandbox's work directory. path is resolved
// relative to the work directory and validated by the path capability guard
// before any I/O.
func (s *Sandbox) ReadFile(path string) ([]byte, error) {
	if err := s.checkDestroyed(); err != nil {
		return nil, err
	}

	full, err := fsguard.ValidatePath(s.v.cfg.WorkDir, path)
	if err != nil {
		return nil, newError(KindPathTraversal, err, "%q", path)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, newError(KindIO, err, "reading %q", path)
	}

	return content, nil
}

// WriteFile writes contents to path inside the sandbox's work directory,
// creating parent directories as needed.
func (s *Sandbox) WriteFile(path string, contents []byte) error {
	if err := s.checkDestroyed(); err != nil {
		return err
	}

	full, err := fsguard.ValidatePath(s.v.cfg.WorkDir, path)
	if err != nil {
		return newError(KindPathTraversal, err, "%q", path)
	}

	if err := os.MkdirAll(parentDir(full), 0o755); err != nil {
		return newError(KindIO, err, "creating parent directory for %q", path)
	}

	if err := os.WriteFile(full, contents, 0o644); err != nil {
		return newError(KindIO, err, "writing %q", path)
	}

	return nil
}

// DirEntry describes one entry returned by [Sandbox.ListDir].
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// ListDir lists entries in path inside the sandbox's work directory, sorted
// by name.
func (s *Sandbox) ListDir(path string) ([]DirEntry, error) {
	if err := s.checkDestroyed(); err != nil {
		return nil, err
	}

	full, err := fsguard.ValidatePath(s.v.cfg.WorkDir, path)
	if err != nil {
		return nil, newError(KindPathTraversal, err, "%q", path)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, newError(KindIO, err, "listing %q", path)
	}

	out := make([]DirEntry, 0, len(entries))

	for _, entry := range entries {
		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil, newError(KindIO, infoErr, "stat %q", entry.Name())
		}

		out = append(out, DirEntry{Name: entry.Name(), IsDir: entry.IsDir(), Size: info.Size()})
	}

	sortDirEntries(out)

	return out, nil
}

func sortDirEntries(entries []DirEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Name > entries[j].Name; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// FsChange describes one filesystem difference detected by [Sandbox.Diff].
type FsChange struct {
	Path string
	Kind string
}

// Diff reports filesystem changes in the work directory since the Sandbox
// was constructed.
func (s *Sandbox) Diff() ([]FsChange, error) {
	if err := s.checkDestroyed(); err != nil {
		return nil, err
	}

	changes, err := s.overlay.Diff()
	if err != nil {
		return nil, newError(KindIO, err, "diffing work dir")
	}

	out := make([]FsChange, len(changes))
	for i, c := range changes {
		out[i] = FsChange{Path: c.Path, Kind: c.Kind.String()}
	}

	return out, nil
}

// Destroy marks the sandbox as no longer usable. Subsequent calls to any
// other method return [ErrDestroyed]. Destroy itself is idempotent.
func (s *Sandbox) Destroy() error {
	s.destroyed.Store(true)
	s.logger.Info("sandbox destroyed", "sandbox_id", s.id)

	return nil
}

func (s *Sandbox) checkDestroyed() error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}

	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}

	return "."
}

func toBridgePolicy(p *FetchPolicy) *bridge.Policy {
	out := &bridge.Policy{
		DenyPrivateIPs:       p.DenyPrivateIPs,
		MaxRedirects:         p.MaxRedirects,
		ConnectTimeout:       p.ConnectTimeout,
		RequestTimeout:       p.RequestTimeout,
		MaxResponseBodyBytes: p.MaxResponseBodyBytes,
	}

	for _, d := range p.AllowedDomains {
		out.AllowedDomains = append(out.AllowedDomains, string(d))
	}

	for _, d := range p.BlockedDomains {
		out.BlockedDomains = append(out.BlockedDomains, string(d))
	}

	if p.RateLimit != nil {
		out.RateLimit = &bridge.RateLimit{RequestsPerSecond: p.RateLimit.RequestsPerSecond, Burst: p.RateLimit.Burst}
	}

	return out
}

func classifyRuntimeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, runtime.ErrTimeout) {
		return newError(KindTimeout, err, "exec timed out")
	}

	return newError(KindRuntime, err, "exec failed")
}
