package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Plugins PluginsConfig `yaml:"plugins"`
	Build   BuildConfig   `yaml:"build"`
	Dev     DevConfig     `yaml:"dev"`
	NATS    NATSConfig    `yaml:"nats,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// PluginsConfig describes where plugin sources live.
type PluginsConfig struct {
	Dir      string `yaml:"dir"`                // root directory, one subdirectory per plugin
	Manifest string `yaml:"manifest,omitempty"` // manifest file a subdirectory must contain to count as a plugin
}

// BuildConfig controls the batch build.
type BuildConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Workers   int      `yaml:"workers,omitempty"` // 0 = number of CPUs
	Command   []string `yaml:"command,omitempty"` // external bundler invocation, argv form
}

// DevConfig controls the dev-sync server started by `bunnybuild dev`.
type DevConfig struct {
	Host              string `yaml:"host,omitempty"`
	Port              int    `yaml:"port,omitempty"`
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty"`
	Debounce          string `yaml:"debounce,omitempty"`
	SentinelPath      string `yaml:"sentinel_path,omitempty"`
	RebuildEvery      string `yaml:"rebuild_every,omitempty"` // optional periodic full rebuild, "" = disabled
}

// NATSConfig enables publishing build lifecycle events to a NATS subject.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig enables the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration populated with defaults only, used by
// commands that run without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for values that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir must be set")
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers must not be negative")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"dev.heartbeat_interval", c.Dev.HeartbeatInterval},
		{"dev.debounce", c.Dev.Debounce},
		{"dev.rebuild_every", c.Dev.RebuildEvery},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field.name, field.value, err)
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url must be set when nats.enabled is true")
	}
	return nil
}

// WorkerCount resolves the effective worker pool size.
func (c *Config) WorkerCount() int {
	if c.Build.Workers > 0 {
		return c.Build.Workers
	}
	return runtime.NumCPU()
}

// HeartbeatInterval resolves the dev heartbeat interval.
func (c *Config) HeartbeatInterval() time.Duration {
	return durationOr(c.Dev.HeartbeatInterval, 20*time.Second)
}

// DebounceDelay resolves the sentinel watch debounce delay.
func (c *Config) DebounceDelay() time.Duration {
	return durationOr(c.Dev.Debounce, 50*time.Millisecond)
}

// RebuildInterval resolves the optional periodic rebuild interval; zero means disabled.
func (c *Config) RebuildInterval() time.Duration {
	return durationOr(c.Dev.RebuildEvery, 0)
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
