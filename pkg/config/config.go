// Package config loads the arbiter/executor/orchestrator configuration from
// an optional TOML file, falling back to sensible built-in defaults (no
// environment-variable overrides), as an explicit
// immutable value threaded through constructors rather than a package-level
// mutable singleton (spec §9).
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// DefaultPort is the arbiter's default TCP port. It is defined once here so
// the client and the daemon can never disagree on it (spec §9 Open
// Questions).
const DefaultPort = 12000

// Config is the merged, read-only configuration for a coreclaimd process or
// a proverbench batch. Zero value is not directly useful; use Default() or
// Load().
type Config struct {
	Port        int           `toml:"port"`
	MaxCores    int           `toml:"max_cores"`
	Parallelism int           `toml:"parallelism"`
	CacheDir    string        `toml:"cache_dir"`
	CacheTTL    time.Duration `toml:"cache_ttl"`
	LogFile     string        `toml:"log_file"`
	Sandbox     string        `toml:"sandbox"` // "process" (default) or "docker"
	OTelEndpoint string       `toml:"otel_endpoint"`

	DefaultExpect string `toml:"default_expect"` // empty means "no default"

	Provers []protocol.Prover `toml:"prover"`
}

// Default returns the zero-config defaults: one prover-less config with the
// pool sized to the host's logical CPUs, a process-level cache under the
// user's cache dir and a two-day TTL, matching §4.2's "two days".
func Default() *Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &Config{
		Port:        DefaultPort,
		MaxCores:    runtime.NumCPU(),
		Parallelism: 1,
		CacheDir:    dir + "/coreclaim",
		CacheTTL:    48 * time.Hour,
		Sandbox:     "process",
	}
}

// Load reads path (if non-empty and it exists) as TOML over Default(),
// field by field — an absent or empty file is not an error, matching the
// teacher's "sensible defaults" philosophy, but a malformed file is a
// Configuration-kind error (§7) surfaced to the CLI.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ProverByName looks up a configured prover descriptor by name.
func (c *Config) ProverByName(name string) (protocol.Prover, bool) {
	for _, p := range c.Provers {
		if p.Name == name {
			return p, true
		}
	}
	return protocol.Prover{}, false
}
