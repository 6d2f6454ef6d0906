package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "10s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the engine's file configuration. Every field has a working
// default; an empty file (or no file at all) yields a runnable engine.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listenAddr"`

	// DataDir holds the operation audit database.
	DataDir string `yaml:"dataDir"`

	// DockerBinary overrides the docker binary looked up on PATH.
	DockerBinary string `yaml:"dockerBinary,omitempty"`

	// StacksDirs are scanned for compose files of projects Docker does not
	// know about yet.
	StacksDirs []string `yaml:"stacksDirs,omitempty"`

	// CacheTTL bounds how stale a served project snapshot may be.
	CacheTTL Duration `yaml:"cacheTTL"`

	// CommandTimeout bounds read-only compose invocations (ls, ps).
	CommandTimeout Duration `yaml:"commandTimeout"`

	// OperationTimeout bounds mutating compose invocations (up, down, ...).
	OperationTimeout Duration `yaml:"operationTimeout"`

	// DiscoveryConcurrency bounds the parallel compose ps fan-out.
	DiscoveryConcurrency int `yaml:"discoveryConcurrency"`

	// PollInterval is the fallback full-refresh cadence.
	PollInterval Duration `yaml:"pollInterval"`

	// DedupWindow shadows repeated (container, action) daemon events.
	DedupWindow Duration `yaml:"dedupWindow"`

	// DebounceWindow coalesces container churn into one refresh.
	DebounceWindow Duration `yaml:"debounceWindow"`

	// OperationRetention prunes audit records older than this.
	OperationRetention Duration `yaml:"operationRetention"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or console.
	Format string `yaml:"format"`
}

// Default returns the configuration the engine runs with when no file is
// given.
func Default() Config {
	return Config{
		ListenAddr:           ":8344",
		DataDir:              "/var/lib/stackdock",
		CacheTTL:             Duration(10 * time.Second),
		CommandTimeout:       Duration(30 * time.Second),
		OperationTimeout:     Duration(5 * time.Minute),
		DiscoveryConcurrency: 4,
		PollInterval:         Duration(time.Minute),
		DedupWindow:          Duration(time.Second),
		DebounceWindow:       Duration(50 * time.Millisecond),
		OperationRetention:   Duration(30 * 24 * time.Hour),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cacheTTL must be positive, got %s", c.CacheTTL.Std())
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("commandTimeout must be positive, got %s", c.CommandTimeout.Std())
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operationTimeout must be positive, got %s", c.OperationTimeout.Std())
	}
	if c.DiscoveryConcurrency < 1 {
		return fmt.Errorf("discoveryConcurrency must be at least 1, got %d", c.DiscoveryConcurrency)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
