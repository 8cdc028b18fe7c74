package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/agent-sandbox/sandbox"
)

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string
	ConfigPath      string
	EnvVars         map[string]string
	CLIFlags        *pflag.FlagSet
}

// FileConfig is the JSON/JSONC-serializable shape of a config file, one
// layer short of a usable [sandbox.Config]: relative paths are still
// relative to whichever directory the file they came from lives in, and
// durations/sizes are still plain numbers rather than the library's native
// types.
type FileConfig struct {
	Mounts         []MountConfig  `json:"mounts,omitempty"`
	EnvVars        map[string]string `json:"envVars,omitempty"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty"`
	MemoryLimitMB  int            `json:"memoryLimitMB,omitempty"`
	FuelLimit      uint64         `json:"fuelLimit,omitempty"`
	Fetch          *FetchConfig   `json:"fetch,omitempty"`

	// LoadedConfigFiles tracks which config files were loaded (for debug
	// output). Key is the config type (global, project, explicit), value is
	// the path.
	LoadedConfigFiles map[string]string `json:"-"`

	// EffectiveWorkDir is resolved, not loaded from any file.
	EffectiveWorkDir string `json:"-"`
}

// MountConfig is one entry of FileConfig.Mounts.
type MountConfig struct {
	HostPath  string `json:"hostPath"`
	GuestPath string `json:"guestPath"`
	Writable  bool   `json:"writable,omitempty"`
}

// FetchConfig is the JSON shape of [sandbox.FetchPolicy]. A nil Fetch on
// FileConfig disables networking entirely, matching the library default.
type FetchConfig struct {
	AllowedDomains        []string         `json:"allowedDomains,omitempty"`
	BlockedDomains        []string         `json:"blockedDomains,omitempty"`
	DenyPrivateIPs        bool             `json:"denyPrivateIPs,omitempty"`
	MaxRedirects          int              `json:"maxRedirects,omitempty"`
	ConnectTimeoutSeconds int              `json:"connectTimeoutSeconds,omitempty"`
	RequestTimeoutSeconds int              `json:"requestTimeoutSeconds,omitempty"`
	MaxResponseBodyBytes  int64            `json:"maxResponseBodyBytes,omitempty"`
	RateLimit             *RateLimitConfig `json:"rateLimit,omitempty"`
}

// RateLimitConfig is the JSON shape of [sandbox.RateLimit].
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// LoadConfig loads configuration with the following precedence (later
// overrides earlier):
//  1. Built-in defaults (no mounts, no fetch policy, library timeout/memory/
//     fuel defaults)
//  2. Global config: $XDG_CONFIG_HOME/agentsandbox/config.json or
//     config.jsonc (defaults to ~/.config/agentsandbox/) - loaded if present
//  3. Project config OR --config path (not both):
//     - Without --config: .agentsandbox.json or .agentsandbox.jsonc in workDir
//     - With --config: uses that path instead of project config
//  4. CLI flags
//
// Both .json and .jsonc files support comments via tailscale/hujson.
func LoadConfig(input LoadConfigInput) (FileConfig, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return FileConfig{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	if !filepath.IsAbs(workDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return FileConfig{}, fmt.Errorf("cannot get working directory: %w", err)
		}

		workDir = filepath.Join(cwd, workDir)
	}

	cfg := FileConfig{LoadedConfigFiles: make(map[string]string)}

	globalBasePath, err := userConfigBasePath(input.EnvVars)
	if err != nil {
		return FileConfig{}, err
	}

	if globalBasePath != "" {
		globalPath, findErr := findConfigFile(globalBasePath)
		if findErr == nil {
			globalCfg, loadErr := parseConfigFile(globalPath)
			if loadErr != nil {
				return FileConfig{}, loadErr
			}

			cfg = mergeConfigs(cfg, globalCfg)
			cfg.LoadedConfigFiles["global"] = globalPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return FileConfig{}, findErr
		}
	}

	if input.ConfigPath != "" {
		configPath := input.ConfigPath
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, parseErr := parseConfigFile(configPath)
		if parseErr != nil {
			return FileConfig{}, parseErr
		}

		cfg = mergeConfigs(cfg, explicitCfg)
		cfg.LoadedConfigFiles["explicit"] = configPath
	} else {
		projectBasePath := filepath.Join(workDir, ".agentsandbox")

		projectPath, findErr := findConfigFile(projectBasePath)
		if findErr == nil {
			projectCfg, loadErr := parseConfigFile(projectPath)
			if loadErr != nil {
				return FileConfig{}, loadErr
			}

			cfg = mergeConfigs(cfg, projectCfg)
			cfg.LoadedConfigFiles["project"] = projectPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return FileConfig{}, findErr
		}
	}

	cfg.EffectiveWorkDir = workDir

	if input.CLIFlags != nil {
		applyCLIFlags(&cfg, input.CLIFlags)
	}

	return cfg, nil
}

// applyCLIFlags applies CLI flag overrides to the config. This is the final
// layer of config merging (highest precedence).
func applyCLIFlags(cfg *FileConfig, flags *pflag.FlagSet) {
	if flags.Changed("mount") {
		vals, _ := flags.GetStringArray("mount")

		for _, v := range vals {
			if m, ok := parseMountFlag(v); ok {
				cfg.Mounts = append(cfg.Mounts, m)
			}
		}
	}

	if flags.Changed("timeout") {
		secs, _ := flags.GetInt("timeout")
		cfg.TimeoutSeconds = secs
	}

	if flags.Changed("memory-limit-mb") {
		mb, _ := flags.GetInt("memory-limit-mb")
		cfg.MemoryLimitMB = mb
	}

	if flags.Changed("fuel-limit") {
		fuel, _ := flags.GetUint64("fuel-limit")
		cfg.FuelLimit = fuel
	}

	if flags.Changed("allow-domain") {
		vals, _ := flags.GetStringArray("allow-domain")
		ensureFetch(cfg)
		cfg.Fetch.AllowedDomains = append(cfg.Fetch.AllowedDomains, vals...)
	}

	if flags.Changed("block-domain") {
		vals, _ := flags.GetStringArray("block-domain")
		ensureFetch(cfg)
		cfg.Fetch.BlockedDomains = append(cfg.Fetch.BlockedDomains, vals...)
	}

	if flags.Changed("fetch") {
		enabled, _ := flags.GetBool("fetch")
		if enabled {
			ensureFetch(cfg)
		} else {
			cfg.Fetch = nil
		}
	}
}

func ensureFetch(cfg *FileConfig) {
	if cfg.Fetch == nil {
		cfg.Fetch = &FetchConfig{}
	}
}

// parseMountFlag parses a --mount HOSTPATH:GUESTPATH[:rw|:ro] flag value.
func parseMountFlag(value string) (MountConfig, bool) {
	parts := splitMountSpec(value)
	if len(parts) < 2 {
		return MountConfig{}, false
	}

	m := MountConfig{HostPath: parts[0], GuestPath: parts[1]}

	if len(parts) == 3 && parts[2] == "rw" {
		m.Writable = true
	}

	return m, true
}

func splitMountSpec(value string) []string {
	var parts []string

	start := 0

	for i := 0; i < len(value); i++ {
		if value[i] == ':' {
			parts = append(parts, value[start:i])
			start = i + 1
		}
	}

	parts = append(parts, value[start:])

	return parts
}

// findConfigFile checks for both .json and .jsonc extensions at basePath
// and returns an error if both exist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, jsonErr := fileExists(jsonPath)
	jsoncExists, jsoncErr := fileExists(jsoncPath)

	if jsonErr != nil && !errors.Is(jsonErr, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", jsonPath, jsonErr)
	}

	if jsoncErr != nil && !errors.Is(jsoncErr, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", jsoncPath, jsoncErr)
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("duplicate config files found: both %s and %s exist; remove one", jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// parseConfigFile loads and parses a JSON/JSONC config file. Both .json and
// .jsonc files support comments via hujson. Unknown fields are an error.
func parseConfigFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return FileConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg FileConfig

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// mergeConfigs merges override into base, with override taking precedence.
// Slices are concatenated; LoadedConfigFiles from base is preserved (the
// caller updates it after merge).
func mergeConfigs(base, override FileConfig) FileConfig {
	result := base

	result.Mounts = append(result.Mounts, override.Mounts...)

	if len(override.EnvVars) > 0 {
		if result.EnvVars == nil {
			result.EnvVars = make(map[string]string, len(override.EnvVars))
		}

		maps.Copy(result.EnvVars, override.EnvVars)
	}

	if override.TimeoutSeconds != 0 {
		result.TimeoutSeconds = override.TimeoutSeconds
	}

	if override.MemoryLimitMB != 0 {
		result.MemoryLimitMB = override.MemoryLimitMB
	}

	if override.FuelLimit != 0 {
		result.FuelLimit = override.FuelLimit
	}

	if override.Fetch != nil {
		result.Fetch = override.Fetch
	}

	return result
}

// userConfigBasePath returns the user config base path (without extension).
// Uses the env map (not os.Getenv) so callers can inject an overridden
// environment.
func userConfigBasePath(env map[string]string) (string, error) {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "agentsandbox", "config"), nil
	}

	home := env["HOME"]
	if home == "" {
		var err error

		home, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
	}

	return filepath.Join(home, ".config", "agentsandbox", "config"), nil
}

// ToSandboxConfig resolves a FileConfig into a [sandbox.Config], making
// relative mount host paths relative to EffectiveWorkDir and converting the
// second/megabyte JSON fields into the library's native duration/byte-count
// types.
func (c FileConfig) ToSandboxConfig(debugf sandbox.Debugf) sandbox.Config {
	cfg := sandbox.Config{
		WorkDir: c.EffectiveWorkDir,
		EnvVars: c.EnvVars,
		Debugf:  debugf,
	}

	for _, m := range c.Mounts {
		hostPath := m.HostPath
		if !filepath.IsAbs(hostPath) {
			hostPath = filepath.Join(c.EffectiveWorkDir, hostPath)
		}

		cfg.Mounts = append(cfg.Mounts, sandbox.MountPoint{
			HostPath:  hostPath,
			GuestPath: m.GuestPath,
			Writable:  m.Writable,
		})
	}

	if c.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}

	if c.MemoryLimitMB > 0 {
		cfg.MemoryLimitBytes = uint64(c.MemoryLimitMB) * 1024 * 1024
	}

	cfg.FuelLimit = c.FuelLimit

	if c.Fetch != nil {
		policy := &sandbox.FetchPolicy{
			DenyPrivateIPs:       c.Fetch.DenyPrivateIPs,
			MaxRedirects:         c.Fetch.MaxRedirects,
			MaxResponseBodyBytes: c.Fetch.MaxResponseBodyBytes,
		}

		for _, d := range c.Fetch.AllowedDomains {
			policy.AllowedDomains = append(policy.AllowedDomains, sandbox.DomainPattern(d))
		}

		for _, d := range c.Fetch.BlockedDomains {
			policy.BlockedDomains = append(policy.BlockedDomains, sandbox.DomainPattern(d))
		}

		if c.Fetch.ConnectTimeoutSeconds > 0 {
			policy.ConnectTimeout = time.Duration(c.Fetch.ConnectTimeoutSeconds) * time.Second
		}

		if c.Fetch.RequestTimeoutSeconds > 0 {
			policy.RequestTimeout = time.Duration(c.Fetch.RequestTimeoutSeconds) * time.Second
		}

		if c.Fetch.RateLimit != nil {
			policy.RateLimit = &sandbox.RateLimit{
				RequestsPerSecond: c.Fetch.RateLimit.RequestsPerSecond,
				Burst:             c.Fetch.RateLimit.Burst,
			}
		}

		cfg.FetchPolicy = policy
	}

	return cfg
}
