package main

import (
	"fmt"
	"io"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// DebugLogger provides structured debug output for sandbox startup and
// execution. It is disabled by default (when output is nil) and outputs to
// stderr when enabled.
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger creates a new debug logger. If output is nil, the logger is
// disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled returns true if debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d != nil && d.output != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// Debugf adapts the logger to the [sandbox.Debugf] hook shape so it can be
// threaded straight into [sandbox.Config].
func (d *DebugLogger) Debugf(format string, args ...any) {
	if !d.Enabled() {
		return
	}

	_, _ = fmt.Fprintf(d.output, "  [trace] "+format+"\n", args...)
}

// ConfigFile outputs information about a config file.
func (d *DebugLogger) ConfigFile(label, path string, loaded bool) {
	if !d.Enabled() {
		return
	}

	if loaded {
		_, _ = fmt.Fprintf(d.output, "  %s: %s\n", label, path)
	} else {
		_, _ = fmt.Fprintf(d.output, "  %s: (not found)\n", label)
	}
}

// debugConfigLoading outputs debug information about config file loading.
func debugConfigLoading(debug *DebugLogger, cfg FileConfig) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Config Loading")

	if len(cfg.LoadedConfigFiles) == 0 {
		debug.Logf("  No config files loaded (using defaults)")

		return
	}

	if path, ok := cfg.LoadedConfigFiles["global"]; ok {
		debug.ConfigFile("Global config", path, true)
	} else {
		debug.ConfigFile("Global config", "", false)
	}

	if path, ok := cfg.LoadedConfigFiles["explicit"]; ok {
		debug.ConfigFile("Explicit config (--config)", path, true)
	} else if path, ok := cfg.LoadedConfigFiles["project"]; ok {
		debug.ConfigFile("Project config", path, true)
	} else {
		debug.ConfigFile("Project config", "", false)
	}
}

// debugResolvedConfig outputs the fully resolved sandbox.Config right before
// a Sandbox is constructed.
func debugResolvedConfig(debug *DebugLogger, cfg sandbox.Config) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Resolved Sandbox Config")
	debug.Logf("  work dir: %s", cfg.WorkDir)
	debug.Logf("  timeout: %s", cfg.Timeout)
	debug.Logf("  memory limit bytes: %d", cfg.MemoryLimitBytes)
	debug.Logf("  fuel limit: %d", cfg.FuelLimit)

	for _, m := range cfg.Mounts {
		mode := "ro"
		if m.Writable {
			mode = "rw"
		}

		debug.Logf("  mount: %s -> %s (%s)", m.HostPath, m.GuestPath, mode)
	}

	if cfg.FetchPolicy == nil {
		debug.Logf("  fetch: disabled")

		return
	}

	debug.Logf("  fetch: enabled, deny-private-ips=%t, max-redirects=%d",
		cfg.FetchPolicy.DenyPrivateIPs, cfg.FetchPolicy.MaxRedirects)

	if len(cfg.FetchPolicy.AllowedDomains) > 0 {
		debug.Logf("  fetch allow-list: %v", cfg.FetchPolicy.AllowedDomains)
	}

	if len(cfg.FetchPolicy.BlockedDomains) > 0 {
		debug.Logf("  fetch block-list: %v", cfg.FetchPolicy.BlockedDomains)
	}
}
