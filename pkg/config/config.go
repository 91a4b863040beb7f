package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the CLI surface in cmd/relayd accepts,
// either from flags or from an optional YAML file. Zero values mean
// "not set"; Merge fills only the fields the flag-side Config leaves at
// their zero value.
type Config struct {
	// Workers is the worker pool size, the `-c`/`--workers` value from
	// spec.md §6. Required; N must be >= 1.
	Workers int `yaml:"workers,omitempty"`

	// Port is the TCP port the acceptor listens on.
	Port int `yaml:"port,omitempty"`

	// DocRoot is the static file tree requests are served from.
	DocRoot string `yaml:"docroot,omitempty"`

	// Artifact is the path to the optional handler plugin checked every
	// request cycle.
	Artifact string `yaml:"artifact,omitempty"`

	// StoreDir holds the bbolt request log database.
	StoreDir string `yaml:"storeDir,omitempty"`

	// MetricsAddr is the listen address for the Prometheus/health HTTP
	// server. Empty disables it.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"logLevel,omitempty"`

	// LogJSON selects JSON log output over the console writer.
	LogJSON bool `yaml:"logJson,omitempty"`
}

// Default returns the CLI's flag defaults, matching spec.md §6's
// unchanged document root and artifact path.
func Default() Config {
	return Config{
		Port:     8080,
		DocRoot:  "./resources",
		Artifact: "./http.so",
		StoreDir: "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file from path.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Merge fills any zero-valued field of flags with the corresponding
// field from file, so that a flag explicitly set on the command line
// always takes precedence over the config file.
func Merge(flags, file Config) Config {
	out := flags

	if out.Workers == 0 {
		out.Workers = file.Workers
	}
	if out.Port == 0 {
		out.Port = file.Port
	}
	if out.DocRoot == "" {
		out.DocRoot = file.DocRoot
	}
	if out.Artifact == "" {
		out.Artifact = file.Artifact
	}
	if out.StoreDir == "" {
		out.StoreDir = file.StoreDir
	}
	if out.MetricsAddr == "" {
		out.MetricsAddr = file.MetricsAddr
	}
	if out.LogLevel == "" {
		out.LogLevel = file.LogLevel
	}
	if !out.LogJSON && file.LogJSON {
		out.LogJSON = file.LogJSON
	}

	return out
}

// Validate enforces the invariants spec.md §6 states for the CLI
// surface: the worker count must be positive.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	return nil
}
