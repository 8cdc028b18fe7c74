package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMemoryLimitBytes = 512 * 1024 * 1024
	defaultFuelLimit        = 1_000_000_000

	defaultConnectTimeout        = 10 * time.Second
	defaultRequestTimeout        = 30 * time.Second
	defaultMaxResponseBodyBytes = 10 * 1024 * 1024
)

// validateConfigAndEnv validates cfg and env together, applying defaults to
// cfg in place, and returns the aggregate of every problem found rather than
// failing on the first one.
func validateConfigAndEnv(cfg *Config, env Environment) error {
	var errs []error

	if cfg.WorkDir == "" {
		errs = append(errs, errors.New("config: WorkDir must be set"))
	} else if !filepath.IsAbs(cfg.WorkDir) {
		cfg.WorkDir = filepath.Join(env.WorkDir, cfg.WorkDir)
	}

	for i, mount := range cfg.Mounts {
		if mount.HostPath == "" {
			errs = append(errs, fmt.Errorf("config: mounts[%d]: HostPath must be set", i))
		} else if !filepath.IsAbs(mount.HostPath) {
			cfg.Mounts[i].HostPath = filepath.Join(env.WorkDir, mount.HostPath)
		}

		if mount.GuestPath == "" {
			errs = append(errs, fmt.Errorf("config: mounts[%d]: GuestPath must be set", i))
		} else if !filepath.IsAbs(mount.GuestPath) {
			errs = append(errs, fmt.Errorf("config: mounts[%d]: GuestPath %q must be absolute", i, mount.GuestPath))
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.MemoryLimitBytes == 0 {
		cfg.MemoryLimitBytes = defaultMemoryLimitBytes
	}

	if cfg.FuelLimit == 0 {
		cfg.FuelLimit = defaultFuelLimit
	}

	if err := validateFetchPolicy(cfg.FetchPolicy); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateFetchPolicy(policy *FetchPolicy) error {
	if policy == nil {
		return nil
	}

	var errs []error

	if policy.MaxRedirects < 0 {
		errs = append(errs, errors.New("config: FetchPolicy.MaxRedirects must be >= 0"))
	}

	if policy.ConnectTimeout <= 0 {
		policy.ConnectTimeout = defaultConnectTimeout
	}

	if policy.RequestTimeout <= 0 {
		policy.RequestTimeout = defaultRequestTimeout
	}

	if policy.MaxResponseBodyBytes <= 0 {
		policy.MaxResponseBodyBytes = defaultMaxResponseBodyBytes
	}

	if policy.RateLimit != nil {
		if policy.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("config: FetchPolicy.RateLimit.RequestsPerSecond must be > 0"))
		}

		if policy.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("config: FetchPolicy.RateLimit.Burst must be > 0"))
		}
	}

	for i, pattern := range policy.AllowedDomains {
		if pattern == "" {
			errs = append(errs, fmt.Errorf("config: FetchPolicy.AllowedDomains[%d] must not be empty", i))
		}
	}

	for i, pattern := range policy.BlockedDomains {
		if pattern == "" {
			errs = append(errs, fmt.Errorf("config: FetchPolicy.BlockedDomains[%d] must not be empty", i))
		}
	}

	return errors.Join(errs...)
}
