package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/artpar/redisup/internal/engine"
	"github.com/artpar/redisup/internal/shell/docker"
	"github.com/artpar/redisup/internal/shell/probe"
	"github.com/artpar/redisup/internal/shell/registry"
	"github.com/artpar/redisup/internal/shell/wiring"
)

// app bundles what a command action needs.
type app struct {
	cfg    *Config
	logger *slog.Logger
	engine *engine.Engine
	out    io.Writer
	close  func() error
}

// loadConfig reads the config file named by --config and applies the
// logging flags on top.
func loadConfig(c *cli.Command) (*Config, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	return cfg, nil
}

// newApp wires the Docker client, probes, wiring executor, orchestrator and
// registry into an engine.
func newApp(ctx context.Context, c *cli.Command) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg, os.Stderr)

	regPath := cfg.Registry.Path
	if regPath == "" {
		if regPath, err = registry.DefaultPath(); err != nil {
			return nil, err
		}
	}
	reg := registry.NewFileRegistry(regPath, logger)

	client, err := docker.NewDockerClient(ctx, cfg.Docker.Host)
	if err != nil {
		return nil, err
	}

	wirer := wiring.NewExecutor(cfg.WiringSettings(), logger)
	orch := docker.NewOrchestrator(
		client,
		probe.NewChecker(cfg.ProbeSettings(), logger),
		wirer,
		docker.OrchestratorConfig{
			ProbeHost:       cfg.Probe.Host,
			Images:          cfg.ImageSet(),
			StopTimeout:     cfg.Timeouts.Stop,
			TeardownTimeout: cfg.Timeouts.Rollback,
		},
		logger,
	)

	logger.Debug("configured", "registry", regPath, "docker_host", cfg.Docker.Host)

	return &app{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(engine.Deps{
			Registry:  reg,
			Runtime:   orch,
			Sentinel:  wirer,
			Logger:    logger,
			ProbeHost: cfg.Probe.Host,
		}),
		out:   c.Root().Writer,
		close: client.Close,
	}, nil
}

// withApp creates an app, runs fn and releases the Docker client.
func withApp(ctx context.Context, c *cli.Command, fn func(a *app) error) error {
	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil {
			a.logger.Debug("closing docker client", "error", cerr)
		}
	}()
	return fn(a)
}
