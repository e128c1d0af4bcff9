package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Docker.Host)
	assert.Empty(t, cfg.Registry.Path)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Ready)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.ProbeInterval)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Stop)
	assert.Equal(t, "redis:7-alpine", cfg.Images.Redis)
	assert.Equal(t, "127.0.0.1", cfg.Probe.Host)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
log:
  level: "debug"
  format: "json"

docker:
  host: "unix:///tmp/docker.sock"

registry:
  path: "/tmp/redisup/instances.json"

timeouts:
  ready: 90s
  probe_interval: 1s

images:
  redis: "redis:7.2"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "unix:///tmp/docker.sock", cfg.Docker.Host)
	assert.Equal(t, "/tmp/redisup/instances.json", cfg.Registry.Path)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Ready)
	assert.Equal(t, time.Second, cfg.Timeouts.ProbeInterval)
	assert.Equal(t, "redis:7.2", cfg.ImageSet().Redis)
	assert.Equal(t, "redis/redisinsight:latest", cfg.ImageSet().Insight)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("REDISUP_LOG_LEVEL", "warn")
	t.Setenv("REDISUP_REGISTRY_PATH", "/custom/instances.json")
	t.Setenv("REDISUP_TIMEOUTS_READY", "5s")
	t.Setenv("REDISUP_PROBE_HOST", "10.0.0.5")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/custom/instances.json", cfg.Registry.Path)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Ready)
	assert.Equal(t, "10.0.0.5", cfg.Probe.Host)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsNonPositiveTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDISUP_TIMEOUTS_READY", "0s")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeouts.ready")
}

func TestConfig_Settings(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	p := cfg.ProbeSettings()
	assert.Equal(t, 60*time.Second, p.ReadyTimeout)
	assert.Equal(t, 2*time.Second, p.AttemptTimeout)

	w := cfg.WiringSettings()
	assert.Equal(t, 30*time.Second, w.SettleTimeout)
	assert.Equal(t, 2*time.Second, w.DialTimeout)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "json"}}
	var buf bytes.Buffer

	logger := SetupLogger(cfg, &buf)
	logger.Debug("deploying instance", "instance", "redis-basic-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "deploying instance", entry["msg"])
	assert.Equal(t, "redis-basic-1", entry["instance"])
}

func TestSetupLogger_LevelFilter(t *testing.T) {
	tests := []struct {
		level   string
		debugOn bool
		warnOn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warning", false, true},
		{"error", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: "text"}}, &buf)

			logger.Debug("debug message")
			logger.Warn("warn message")

			assert.Equal(t, tt.debugOn, strings.Contains(buf.String(), "debug message"))
			assert.Equal(t, tt.warnOn, strings.Contains(buf.String(), "warn message"))
		})
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"REDISUP_LOG_LEVEL",
		"REDISUP_LOG_FORMAT",
		"REDISUP_DOCKER_HOST",
		"REDISUP_REGISTRY_PATH",
		"REDISUP_TIMEOUTS_READY",
		"REDISUP_TIMEOUTS_PROBE_INTERVAL",
		"REDISUP_PROBE_HOST",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
