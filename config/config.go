package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ShuffleConfig holds rewrite-pass configurations.
type ShuffleConfig struct {
	Mode       string  `yaml:"mode"`       // "plain" or "balanced"
	Seed       uint64  `yaml:"seed"`       // 0 draws a fresh seed per run
	Classifier string  `yaml:"classifier"` // "argmax" or "threshold"
	Threshold  float32 `yaml:"threshold"`  // used by the threshold classifier
	// Concurrency bounds how many datasets are rewritten at once.
	Concurrency int `yaml:"concurrency"`
}

// DatasetConfig holds output dataset configurations.
type DatasetConfig struct {
	Compression     string `yaml:"compression"` // for generated datasets; rewrites keep the source codec
	Preallocate     bool   `yaml:"preallocate"` // reserve the source size for the output up front
	LockTimeout     string `yaml:"lock_timeout"`
	OutputSuffix    string `yaml:"output_suffix"`
	MemoryCheck     bool   `yaml:"memory_check"` // warn when the index may not fit in memory
	VerifyAfterCopy bool   `yaml:"verify_after_copy"`
}

// HooksConfig holds the built-in listener configurations.
type HooksConfig struct {
	MinClassFraction float64  `yaml:"min_class_fraction"` // ClassSkewAlerter threshold, 0 disables
	MaxEntries       uint32   `yaml:"max_entries"`        // RewriteGuard limit, 0 disables
	AllowedModes     []string `yaml:"allowed_modes"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// Config is the top-level configuration struct.
type Config struct {
	Shuffle ShuffleConfig `yaml:"shuffle"`
	Dataset DatasetConfig `yaml:"dataset"`
	Hooks   HooksConfig   `yaml:"hooks"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Shuffle: ShuffleConfig{
			Mode:        "balanced",
			Classifier:  "argmax",
			Threshold:   0.5,
			Concurrency: 2,
		},
		Dataset: DatasetConfig{
			Compression:  "snappy",
			Preallocate:  true,
			LockTimeout:  "5s",
			OutputSuffix: ".shuffled",
			MemoryCheck:  true,
		},
		Hooks: HooksConfig{
			MinClassFraction: 0.01,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexusdata.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: "127.0.0.1:9464",
			Path:          "/metrics",
		},
	}
}

// Load reads configuration from an io.Reader over the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Shuffle.Mode {
	case "plain", "balanced":
	default:
		return fmt.Errorf("invalid shuffle.mode %q: expected plain or balanced", c.Shuffle.Mode)
	}
	if c.Shuffle.Concurrency < 1 {
		return fmt.Errorf("invalid shuffle.concurrency %d: must be at least 1", c.Shuffle.Concurrency)
	}
	if c.Hooks.MinClassFraction < 0 || c.Hooks.MinClassFraction >= 1 {
		return fmt.Errorf("invalid hooks.min_class_fraction %v: must be in [0, 1)", c.Hooks.MinClassFraction)
	}
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("invalid tracing.protocol %q: expected grpc or http", c.Tracing.Protocol)
	}
	return nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
