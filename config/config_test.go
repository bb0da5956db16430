package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	yamlContent := `
shuffle:
  mode: plain
  seed: 42
dataset:
  compression: zstd
  lock_timeout: 30s
hooks:
  max_entries: 1000000
  allowed_modes: [plain]
metrics:
  enabled: true
`
	cfg, err := Load(strings.NewReader(yamlContent))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Check overridden values
	assert.Equal(t, "plain", cfg.Shuffle.Mode)
	assert.Equal(t, uint64(42), cfg.Shuffle.Seed)
	assert.Equal(t, "zstd", cfg.Dataset.Compression)
	assert.Equal(t, "30s", cfg.Dataset.LockTimeout)
	assert.Equal(t, uint32(1000000), cfg.Hooks.MaxEntries)
	assert.Equal(t, []string{"plain"}, cfg.Hooks.AllowedModes)
	assert.True(t, cfg.Metrics.Enabled)

	// Check defaults that were not overridden
	assert.Equal(t, "argmax", cfg.Shuffle.Classifier)
	assert.Equal(t, 2, cfg.Shuffle.Concurrency)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.ListenAddress)
	assert.True(t, cfg.Dataset.Preallocate)
}

func TestLoad_EmptyReader(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "balanced", cfg.Shuffle.Mode)
}

func TestLoad_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"InvalidYAML", "shuffle:\n  mode: plain\n  this: is: invalid: yaml\n", "failed to unmarshal config yaml"},
		{"UnknownMode", "shuffle:\n  mode: sorted\n", "invalid shuffle.mode"},
		{"ZeroConcurrency", "shuffle:\n  concurrency: 0\n", "invalid shuffle.concurrency"},
		{"FractionOutOfRange", "hooks:\n  min_class_fraction: 1.5\n", "invalid hooks.min_class_fraction"},
		{"UnknownProtocol", "tracing:\n  protocol: udp\n", "invalid tracing.protocol"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfig_FileIntegration(t *testing.T) {
	t.Run("FileExists", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("shuffle:\n  seed: 12345\n"), 0644))

		cfg, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, uint64(12345), cfg.Shuffle.Seed)
	})

	t.Run("FileDoesNotExist", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "non_existent_config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestParseDuration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultDuration := 10 * time.Second

	testCases := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"ValidSeconds", "5s", 5 * time.Second},
		{"ValidMilliseconds", "500ms", 500 * time.Millisecond},
		{"EmptyString", "", defaultDuration},
		{"ZeroString", "0", defaultDuration},
		{"InvalidString", "5x", defaultDuration},
		{"NilLogger", "5x", defaultDuration},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var testLogger *slog.Logger
			if tc.name != "NilLogger" {
				testLogger = logger
			}
			assert.Equal(t, tc.expected, ParseDuration(tc.input, defaultDuration, testLogger))
		})
	}
}
