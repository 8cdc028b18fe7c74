// Package sandbox provides a programmatic API for running commands inside a
// capability-confined WASM sandbox (Wasmtime + WASI preview 1).
//
// The sandbox package does not spawn host processes for the commands it
// runs; instead it loads a single guest WASM module (the "toolbox",
// see package guest) into a Wasmtime store per call and drives it through
// WASI. Filesystem access is limited to the sandbox's work directory and any
// configured mounts; network access, if enabled at all, only ever goes
// through the synchronous fetch bridge (package sandbox/bridge).
//
// # Planning vs Execution
//
// Sandbox construction (New/NewWithEnvironment) validates caller input,
// deep-copies it, and snapshots a content-hashed view of the work directory
// (see package sandbox/overlay) so later diffs are relative to a known
// starting point. The guest module itself is compiled once per process and
// cached (see package sandbox/cache); constructing many Sandboxes is cheap.
//
// # Security Note
//
// This library constrains guest code through WASI capability confinement
// (explicit preopened directories, no ambient filesystem or network access,
// fuel-metered CPU, a memory ceiling). It is not a complete security
// boundary against a maliciously crafted WASM module attacking Wasmtime
// itself; your effective security properties depend on Wasmtime and the
// policy you configure.
package sandbox

import (
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Config configures sandbox behavior.
//
// Config is intentionally independent from any config-file loading or CLI
// flag parsing; callers are expected to produce a final Config before
// constructing a Sandbox.
//
// The zero value of Config is not directly usable: WorkDir must be set.
// Timeout, MemoryLimitBytes, and FuelLimit apply their documented defaults
// when zero.
type Config struct {
	// WorkDir is the host directory exposed as /work inside the sandbox.
	WorkDir string

	// Mounts are additional directories exposed beyond WorkDir.
	Mounts []MountPoint

	// EnvVars are environment variables set inside the sandbox, in addition
	// to TOOLBOX_CMD which the runtime sets for BusyBox-style dispatch.
	EnvVars map[string]string

	// Timeout bounds wall-clock execution time per command. Zero applies the
	// default of 30 seconds.
	Timeout time.Duration

	// MemoryLimitBytes bounds the WASM instance's linear memory. Zero
	// applies the default of 512 MiB.
	MemoryLimitBytes uint64

	// FuelLimit bounds the number of Wasmtime fuel units a single exec may
	// consume, providing a hard backstop independent of wall-clock time.
	// Zero applies the default of 1 billion units.
	FuelLimit uint64

	// FetchPolicy enables and constrains outbound HTTP from the guest via
	// the fetch bridge. Nil disables all networking.
	FetchPolicy *FetchPolicy

	// Debugf receives low-level trace messages (exit code and fuel consumed
	// per call, wall-clock timeouts, failed fetch bridge requests). Safe to
	// call from any goroutine. May be nil.
	Debugf Debugf

	// Logger receives structured lifecycle events ("sandbox created" and
	// "sandbox destroyed"). Config validation failures and fetch policy
	// rejections are not logged through it. Defaults to slog.Default() when
	// nil.
	Logger *slog.Logger
}

// MountPoint maps a host directory into the sandbox at a guest path.
type MountPoint struct {
	// HostPath is the path on the host filesystem.
	HostPath string

	// GuestPath is the path inside the sandbox (e.g. "/data").
	GuestPath string

	// Writable controls whether the guest can write to this mount.
	Writable bool
}

// DomainPattern matches hostnames for fetch policy allow/block lists.
//
// A pattern is either an exact hostname ("api.example.com") or a
// leading-wildcard suffix match ("*.example.com" matches
// "anything.example.com" but not "example.com" itself).
type DomainPattern string

// Matches reports whether host satisfies the pattern.
func (p DomainPattern) Matches(host string) bool {
	pattern := string(p)

	if suffix, ok := cutPrefix(pattern, "*."); ok {
		return len(host) > len(suffix) && host[len(host)-len(suffix)-1] == '.' && host[len(host)-len(suffix):] == suffix
	}

	return pattern == host
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}

	return s[len(prefix):], true
}

// FetchPolicy constrains outbound HTTP issued by the guest through the fetch
// bridge (package sandbox/bridge). A nil FetchPolicy on [Config] disables
// networking entirely; a non-nil, zero-value FetchPolicy allows any host not
// matched by BlockedDomains and not resolving to a private address (subject
// to DenyPrivateIPs).
type FetchPolicy struct {
	// AllowedDomains, if non-nil, is an allow-list: only requests whose host
	// matches one of these patterns are permitted. Nil means "no allow-list
	// restriction" (subject to BlockedDomains/DenyPrivateIPs).
	AllowedDomains []DomainPattern

	// BlockedDomains is a mandatory block-list checked even when a host
	// matches AllowedDomains.
	BlockedDomains []DomainPattern

	// DenyPrivateIPs rejects requests that resolve to RFC1918/loopback/
	// link-local addresses, preventing guest code from reaching the host's
	// internal network via DNS rebinding or literal private IPs.
	DenyPrivateIPs bool

	// MaxRedirects bounds the number of redirects the bridge will follow.
	// Zero means no redirects are followed.
	MaxRedirects int

	// ConnectTimeout bounds TCP/TLS connection establishment. Zero applies a
	// 10 second default.
	ConnectTimeout time.Duration

	// RequestTimeout bounds the entire request/response round trip. Zero
	// applies a 30 second default.
	RequestTimeout time.Duration

	// MaxResponseBodyBytes bounds how much of a response body is buffered
	// and returned to the guest. Zero applies a 10 MiB default.
	MaxResponseBodyBytes int64

	// RateLimit, if set, throttles fetch calls issued by a single sandbox
	// instance. Nil disables rate limiting.
	RateLimit *RateLimit
}

// RateLimit configures a token-bucket limiter guarding the fetch bridge.
type RateLimit struct {
	// RequestsPerSecond is the sustained rate of allowed requests.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a single burst.
	Burst int
}

// Environment describes the process-level context a Sandbox runs with.
type Environment struct {
	// HomeDir is the host home directory (informational; not mounted).
	HomeDir string

	// WorkDir is the host working directory used to resolve relative
	// Config.WorkDir / MountPoint.HostPath values.
	WorkDir string

	// HostEnv is the host process environment, used only to resolve
	// variable references during config loading; it is never passed into
	// the guest, which only ever sees Config.EnvVars.
	HostEnv map[string]string
}

// Debugf receives low-level trace messages from sandbox construction and
// command execution. The function should be safe to call from any
// goroutine.
type Debugf func(format string, args ...any)

// cloneConfig returns a deep copy of cfg. Slices, maps, and pointers are
// cloned so modifications to the copy don't affect the original.
func cloneConfig(cfg *Config) Config {
	out := *cfg

	out.Mounts = slices.Clone(cfg.Mounts)

	if cfg.EnvVars != nil {
		out.EnvVars = make(map[string]string, len(cfg.EnvVars))
		maps.Copy(out.EnvVars, cfg.EnvVars)
	}

	if cfg.FetchPolicy != nil {
		policy := *cfg.FetchPolicy
		policy.AllowedDomains = slices.Clone(cfg.FetchPolicy.AllowedDomains)
		policy.BlockedDomains = slices.Clone(cfg.FetchPolicy.BlockedDomains)

		if cfg.FetchPolicy.RateLimit != nil {
			rl := *cfg.FetchPolicy.RateLimit
			policy.RateLimit = &rl
		}

		out.FetchPolicy = &policy
	}

	out.Debugf = cfg.Debugf
	out.Logger = cfg.Logger

	return out
}

// cloneEnvironment returns a deep copy of env.
func cloneEnvironment(env Environment) Environment {
	out := env

	if env.HostEnv == nil {
		out.HostEnv = map[string]string{}
	} else {
		out.HostEnv = make(map[string]string, len(env.HostEnv))
		maps.Copy(out.HostEnv, env.HostEnv)
	}

	return out
}

// marker to prevent Sandbox from being copied after first use.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// internalErrorf reports an internal invariant violation.
//
// These errors indicate a bug in this package rather than invalid caller
// input.
func internalErrorf(op, format string, args ...any) error {
	return newError(KindOther, nil, "internal error in %s: "+format, append([]any{op}, args...)...)
}
