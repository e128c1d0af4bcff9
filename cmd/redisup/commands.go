package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/artpar/redisup/internal/core/domain"
	"github.com/artpar/redisup/internal/core/manifest"
	"github.com/artpar/redisup/internal/engine"
)

// NewCommand builds the redisup command tree.
func NewCommand() *cli.Command {
	cmd := &cli.Command{
		Name:    "redisup",
		Usage:   "Provision and supervise Redis topologies on Docker",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("REDISUP_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
	}

	for _, t := range domain.DeploymentTypes {
		cmd.Commands = append(cmd.Commands, typeCommand(t))
	}
	cmd.Commands = append(cmd.Commands,
		listCommand(),
		logsCommand(),
		cleanupCommand(),
		deployCommand(),
		examplesCommand(),
	)
	return cmd
}

// =============================================================================
// Per-type Commands
// =============================================================================

func typeCommand(t domain.DeploymentType) *cli.Command {
	cmd := &cli.Command{
		Name:  string(t),
		Usage: fmt.Sprintf("Manage %s instances", t),
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  fmt.Sprintf("Start a new %s instance", t),
				Flags:  append(commonStartFlags(t), typeStartFlags(t)...),
				Action: startAction(t),
			},
			{
				Name:      "stop",
				Usage:     "Stop an instance (latest when no name is given)",
				ArgsUsage: "[name]",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app) error {
						rec, err := a.engine.Stop(ctx, t, c.Args().First())
						if err != nil {
							return err
						}
						fmt.Fprintf(a.out, "Stopped %s (%d containers)\n", rec.Name, len(rec.Nodes))
						return nil
					})
				},
			},
			{
				Name:      "info",
				Usage:     "Show an instance (latest when no name is given)",
				ArgsUsage: "[name]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: formatTable, Usage: "Output format (table, json)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					format := c.String("format")
					if format != formatTable && format != formatJSON {
						return fmt.Errorf("%w: unknown format %q", domain.ErrInvalidRequest, format)
					}
					return withApp(ctx, c, func(a *app) error {
						view, err := a.engine.Info(ctx, t, c.Args().First())
						if err != nil {
							return err
						}
						if format == formatJSON {
							return printInstanceJSON(a.out, view)
						}
						return printInstance(a.out, view)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove an instance, its containers and its network",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "volumes", Usage: "Also remove data volumes"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("%w: instance name required", domain.ErrInvalidRequest)
					}
					return withApp(ctx, c, func(a *app) error {
						rec, err := a.engine.Delete(ctx, t, name, c.Bool("volumes"))
						if err != nil {
							return err
						}
						fmt.Fprintf(a.out, "Deleted %s (%d containers)\n", rec.Name, len(rec.Nodes))
						return nil
					})
				},
			},
		},
	}
	if t == domain.TypeSentinel {
		cmd.Commands = append(cmd.Commands, failoverCommand())
	}
	return cmd
}

func commonStartFlags(t domain.DeploymentType) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "Instance name (generated when empty)"},
		&cli.IntFlag{Name: "port", Usage: fmt.Sprintf("First host port (default %d)", defaultPortHint(t))},
		&cli.StringFlag{Name: "password", Usage: "Password (generated when empty)"},
		&cli.BoolFlag{Name: "persist", Usage: "Keep data in a named volume"},
		&cli.StringFlag{Name: "memory", Usage: "Memory limit per container, e.g. 256m or 1g"},
		&cli.BoolFlag{Name: "insight", Usage: "Also run a RedisInsight container"},
		&cli.IntFlag{Name: "insight-port", Usage: "Host port for RedisInsight"},
	}
}

func typeStartFlags(t domain.DeploymentType) []cli.Flag {
	switch t {
	case domain.TypeStack:
		return []cli.Flag{
			&cli.StringSliceFlag{Name: "module", Usage: "Module to record (json, search, timeseries, graph, bloom); repeatable"},
		}
	case domain.TypeCluster:
		return []cli.Flag{
			&cli.IntFlag{Name: "masters", Value: manifest.DefaultClusterMasters, Usage: "Number of masters (at least 3)"},
			&cli.IntFlag{Name: "replicas", Usage: "Replicas per master"},
			&cli.BoolFlag{Name: "stack", Usage: "Run the nodes on the redis-stack image"},
		}
	case domain.TypeSentinel:
		return []cli.Flag{
			&cli.IntFlag{Name: "masters", Value: 1, Usage: "Number of monitored masters"},
			&cli.IntFlag{Name: "replicas", Value: 1, Usage: "Replicas per master"},
			&cli.IntFlag{Name: "sentinels", Value: manifest.DefaultSentinels, Usage: "Number of sentinels"},
			&cli.IntFlag{Name: "quorum", Usage: "Sentinels that must agree (default majority)"},
			&cli.IntFlag{Name: "sentinel-port", Usage: "First sentinel host port (default 26379)"},
		}
	case domain.TypeEnterprise:
		return []cli.Flag{
			&cli.IntFlag{Name: "nodes", Value: manifest.DefaultEnterpriseNodes, Usage: "Number of cluster nodes"},
			&cli.IntFlag{Name: "db-port", Usage: "Host port for the database endpoint (default 12000)"},
		}
	}
	return nil
}

// requestFromFlags builds a deployment request from start flags.
func requestFromFlags(t domain.DeploymentType, c *cli.Command) (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{
		Type:        t,
		Name:        c.String("name"),
		BasePort:    c.Int("port"),
		Password:    c.String("password"),
		Persist:     c.Bool("persist"),
		WithInsight: c.Bool("insight"),
		InsightPort: c.Int("insight-port"),
	}
	if s := c.String("memory"); s != "" {
		mem, err := manifest.ParseMemory(s)
		if err != nil {
			return req, err
		}
		req.MemoryLimit = mem
	}

	switch t {
	case domain.TypeStack:
		req.Modules = c.StringSlice("module")
	case domain.TypeCluster:
		req.Masters = c.Int("masters")
		req.Replicas = c.Int("replicas")
		req.UseStack = c.Bool("stack")
	case domain.TypeSentinel:
		req.Masters = c.Int("masters")
		req.Replicas = c.Int("replicas")
		req.Sentinels = c.Int("sentinels")
		req.Quorum = c.Int("quorum")
		req.SentinelBasePort = c.Int("sentinel-port")
	case domain.TypeEnterprise:
		req.Nodes = c.Int("nodes")
		req.DatabasePort = c.Int("db-port")
	}
	return req, nil
}

func startAction(t domain.DeploymentType) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		req, err := requestFromFlags(t, c)
		if err != nil {
			return err
		}
		return withApp(ctx, c, func(a *app) error {
			rec, err := a.engine.Start(ctx, req)
			if rec != nil && rec.Status == domain.StatusPartiallyFailed {
				fmt.Fprintf(a.out, "Instance %s is partially deployed; run 'redisup %s delete %s' to remove it\n", rec.Name, rec.Type, rec.Name)
			}
			if err != nil {
				return err
			}
			return printStarted(a.out, rec)
		})
	}
}

func failoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "failover",
		Usage:     "Force a sentinel failover (latest group when no name is given)",
		ArgsUsage: "[name]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "master", Value: 1, Usage: "Master to fail over (1-based)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(a *app) error {
				addr, err := a.engine.Failover(ctx, c.Args().First(), c.Int("master"))
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Failover triggered; sentinel reports master at %s\n", addr)
				return nil
			})
		},
	}
}

// =============================================================================
// Global Commands
// =============================================================================

func typeFlag(usage string) cli.Flag {
	return &cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: usage}
}

func parseTypeFlag(c *cli.Command) (domain.DeploymentType, error) {
	s := c.String("type")
	if s == "" {
		return "", nil
	}
	return domain.ParseDeploymentType(s)
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List instances, cross-checked against Docker",
		Flags: []cli.Flag{typeFlag("Only list instances of this type")},
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := parseTypeFlag(c)
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(a *app) error {
				views, err := a.engine.List(ctx, t)
				if err != nil {
					return err
				}
				return printList(a.out, views)
			})
		},
	}
}

func logsCommand() *cli.Command {
	return &cli.Command{
		Name:      "logs",
		Usage:     "Show container logs of an instance",
		ArgsUsage: "[name]",
		Flags: []cli.Flag{
			typeFlag("Pick the latest instance of this type when no name is given"),
			&cli.StringFlag{Name: "node", Aliases: []string{"n"}, Usage: "Container name or 1-based node index"},
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Follow log output"},
			&cli.StringFlag{Name: "tail", Value: "20", Usage: "Number of lines from the end, or all"},
			&cli.BoolFlag{Name: "timestamps", Usage: "Show timestamps"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := parseTypeFlag(c)
			if err != nil {
				return err
			}
			name := c.Args().First()
			if name == "" && t == "" {
				return fmt.Errorf("%w: give an instance name or --type", domain.ErrInvalidRequest)
			}
			return withApp(ctx, c, func(a *app) error {
				return a.engine.Logs(ctx, engine.LogsRequest{
					Type:       t,
					Instance:   name,
					Node:       c.String("node"),
					Follow:     c.Bool("follow"),
					Tail:       c.String("tail"),
					Timestamps: c.Bool("timestamps"),
				}, a.out, errWriter(c))
			})
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:      "cleanup",
		Usage:     "Remove instances and their containers (one instance when a name is given)",
		ArgsUsage: "[name]",
		Flags: []cli.Flag{
			typeFlag("Only remove instances of this type"),
			&cli.BoolFlag{Name: "force", Usage: "Drop records even if removal fails, and remove orphaned containers"},
			&cli.BoolFlag{Name: "volumes", Usage: "Also remove data volumes"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := parseTypeFlag(c)
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(a *app) error {
				report, err := a.engine.Cleanup(ctx, engine.CleanupOptions{
					Type:          t,
					Instance:      c.Args().First(),
					Force:         c.Bool("force"),
					RemoveVolumes: c.Bool("volumes"),
				})
				if report != nil {
					printCleanup(a.out, report)
				}
				return err
			})
		},
	}
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Start every deployment in a YAML document",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("%w: deployment file required", domain.ErrInvalidRequest)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			reqs, err := manifest.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return withApp(ctx, c, func(a *app) error {
				started, err := a.engine.StartAll(ctx, reqs)
				for i := range started {
					if perr := printStarted(a.out, &started[i]); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func examplesCommand() *cli.Command {
	return &cli.Command{
		Name:      "examples",
		Usage:     "Write example deployment documents",
		ArgsUsage: "[dir]",
		Action: func(ctx context.Context, c *cli.Command) error {
			dir := c.Args().First()
			if dir == "" {
				dir = "redisup-examples"
			}
			written, err := writeExamples(dir)
			if err != nil {
				return err
			}
			out := c.Root().Writer
			for _, p := range written {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}
}

// writeExamples writes every example document into dir and returns the
// paths written.
func writeExamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	docs := manifest.Examples()
	var written []string
	for _, name := range manifest.ExampleNames() {
		data, err := manifest.Marshal(docs[name])
		if err != nil {
			return written, err
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func errWriter(c *cli.Command) io.Writer {
	if w := c.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// defaultPortHint is the first host port a type uses when --port is unset.
func defaultPortHint(t domain.DeploymentType) int {
	switch t {
	case domain.TypeCluster:
		return 7000
	case domain.TypeEnterprise:
		return 8443
	}
	return 6379
}
