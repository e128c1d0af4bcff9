package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	coredeployment "github.com/artpar/redisup/internal/core/deployment"
	"github.com/artpar/redisup/internal/shell/probe"
	"github.com/artpar/redisup/internal/shell/wiring"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Registry RegistryConfig `mapstructure:"registry"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Images   ImagesConfig   `mapstructure:"images"`
	Probe    ProbeConfig    `mapstructure:"probe"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// RegistryConfig holds the instance registry location. An empty path selects
// the user config directory.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// TimeoutsConfig bounds the blocking phases of a deployment.
type TimeoutsConfig struct {
	// Ready bounds the readiness wait of each node.
	Ready time.Duration `mapstructure:"ready"`
	// ProbeInterval is the pause between readiness probes.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	// Probe bounds a single probe attempt.
	Probe time.Duration `mapstructure:"probe"`
	// Wiring bounds cluster gossip convergence.
	Wiring time.Duration `mapstructure:"wiring"`
	// Stop is the grace period given to containers on stop.
	Stop time.Duration `mapstructure:"stop"`
	// Rollback bounds teardown after a failed deployment.
	Rollback time.Duration `mapstructure:"rollback"`
}

// ImagesConfig overrides the image used per role.
type ImagesConfig struct {
	Redis      string `mapstructure:"redis"`
	Stack      string `mapstructure:"stack"`
	Insight    string `mapstructure:"insight"`
	Enterprise string `mapstructure:"enterprise"`
}

// ProbeConfig holds the address where published ports are reachable.
type ProbeConfig struct {
	Host string `mapstructure:"host"`
}

// ProbeSettings returns the readiness probe settings.
func (c *Config) ProbeSettings() probe.Config {
	return probe.Config{
		ReadyTimeout:   c.Timeouts.Ready,
		Interval:       c.Timeouts.ProbeInterval,
		AttemptTimeout: c.Timeouts.Probe,
	}
}

// WiringSettings returns the wiring executor settings.
func (c *Config) WiringSettings() wiring.Config {
	cfg := wiring.DefaultConfig()
	if c.Timeouts.Wiring > 0 {
		cfg.SettleTimeout = c.Timeouts.Wiring
	}
	if c.Timeouts.Probe > 0 {
		cfg.DialTimeout = c.Timeouts.Probe
	}
	return cfg
}

// ImageSet returns the configured images with defaults filled in.
func (c *Config) ImageSet() coredeployment.Images {
	return coredeployment.Images{
		Redis:      c.Images.Redis,
		Stack:      c.Images.Stack,
		Insight:    c.Images.Insight,
		Enterprise: c.Images.Enterprise,
	}.WithDefaults()
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	images := coredeployment.DefaultImages()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("docker.host", "")
	v.SetDefault("registry.path", "")
	v.SetDefault("timeouts.ready", "60s")
	v.SetDefault("timeouts.probe_interval", "500ms")
	v.SetDefault("timeouts.probe", "2s")
	v.SetDefault("timeouts.wiring", "30s")
	v.SetDefault("timeouts.stop", "10s")
	v.SetDefault("timeouts.rollback", "60s")
	v.SetDefault("images.redis", images.Redis)
	v.SetDefault("images.stack", images.Stack)
	v.SetDefault("images.insight", images.Insight)
	v.SetDefault("images.enterprise", images.Enterprise)
	v.SetDefault("probe.host", "127.0.0.1")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only a file that exists but does not parse is an error
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("REDISUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for key, d := range map[string]time.Duration{
		"timeouts.ready":          c.Timeouts.Ready,
		"timeouts.probe_interval": c.Timeouts.ProbeInterval,
		"timeouts.probe":          c.Timeouts.Probe,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", key, d)
		}
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs go
// to w (stderr) so command output on stdout stays machine-readable.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
