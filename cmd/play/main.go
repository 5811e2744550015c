//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dshulyak/playground"
	"github.com/dshulyak/playground/core"
	"github.com/dshulyak/playground/logger"
	"github.com/dshulyak/playground/network"
	"github.com/dshulyak/playground/options"
	"github.com/dshulyak/playground/partition"
	"github.com/dshulyak/playground/store"
	"github.com/dshulyak/playground/version"
)

/**
 * Application entry point.
 */
func main() {
	cmd := &cli.Command{
		Name:    "play",
		Usage:   "Run commands in their own network namespaces, shaping and partitioning traffic between them.",
		Version: version.Version(),
		Flags:   loggingFlags(),
		Commands: []*cli.Command{
			runCommand(),
			cleanupCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log verbosity (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "Log format (text|json)",
		},
	}
}

/**
 * Creates the application logger from the logging flags.
 */
func setupLogger(c *cli.Command) error {
	level, err := options.ParseLogLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	format, err := options.ParseLogFormat(c.String("log-format"))
	if err != nil {
		return err
	}
	logger.CreateLogger(&logger.LoggerOpts{LogLevel: level, LogFormat: format})
	return nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Deploy the playground and supervise the commands until interrupted",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "command",
				Aliases: []string{"c"},
				Usage:   "Command to execute. Occurrences of {index} are replaced with the instance index",
			},
			&cli.StringSliceFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of instances per command. One value applies to all commands; otherwise must match --command",
			},
			&cli.StringSliceFlag{
				Name:  "tbf",
				Usage: "man tbf. Passed as is to tc qdisc after the tbf keyword, e.g. 'rate 1mbit burst 80kbit latency 100ms'",
			},
			&cli.StringSliceFlag{
				Name:  "netem",
				Usage: "man netem. Passed as is to tc qdisc after the netem keyword, e.g. 'delay 100ms loss 2%'",
			},
			&cli.StringSliceFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Environment variable to set for the commands as KEY=VALUE",
			},
			&cli.StringFlag{
				Name:  "cidr",
				Value: "10.0.0.0/16",
				Usage: "Every bridge and instance is given an address from this cidr",
			},
			&cli.StringFlag{
				Name:    "prefix",
				Aliases: []string{"p"},
				Value:   "p-XXX",
				Usage:   "Prefix for every kernel object. Each literal X is replaced by a random character",
			},
			&cli.StringFlag{
				Name:  "partition",
				Usage: "Partition schedule, e.g. '0.5 0.5 interval 5s duration 10s'",
			},
			&cli.BoolFlag{
				Name:  "no-revert",
				Usage: "Do not revert the changes made to the network configuration",
			},
			&cli.StringSliceFlag{
				Name:    "work-dir",
				Aliases: []string{"w"},
				Usage:   "Working directory for the command",
			},
			&cli.BoolFlag{
				Name:  "redirect",
				Usage: "Redirect stdout and stderr to work_dir/namespace.{stdout,stderr} files",
			},
			&cli.IntFlag{
				Name:  "instances-per-bridge",
				Value: core.MaxVethPerBridge,
				Usage: "Number of instances attached to a single bridge",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: "1/1",
				Usage: "Identifier of this host as id/total",
			},
			&cli.UintFlag{
				Name:  "vxlan-id",
				Value: 1000,
				Usage: "Vxlan id to use for vxlan tunnelling",
			},
			&cli.UintFlag{
				Name:  "vxlan-port",
				Value: 4789,
				Usage: "Port to use for vxlan tunnelling",
			},
			&cli.StringFlag{
				Name:  "vxlan-multicast-group",
				Value: "239.1.1.1",
				Usage: "Multicast group to use for vxlan tunnelling",
			},
			&cli.StringFlag{
				Name:  "vxlan-device",
				Usage: "Device to use for vxlan tunnelling",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return run(c)
		},
	}
}

/**
 * Builds the environment from the CLI flags, deploys it and blocks until
 * a failure or an interrupt, then clears it.
 */
func run(c *cli.Command) error {
	counts, err := parseCounts(c.StringSlice("count"))
	if err != nil {
		return err
	}
	fanout, err := options.NewFanout(
		c.StringSlice("command"),
		counts,
		c.StringSlice("tbf"),
		c.StringSlice("netem"),
		c.StringSlice("work-dir"),
	)
	if err != nil {
		return err
	}
	env, err := options.ParseEnvList(c.StringSlice("env"))
	if err != nil {
		return err
	}
	prefix, err := network.ExpandPrefix(c.String("prefix"))
	if err != nil {
		return err
	}
	var schedule *partition.Partition
	if s := c.String("partition"); s != "" {
		parsed, err := partition.Parse(s)
		if err != nil {
			return err
		}
		schedule = &parsed
	}
	hostID, totalHosts, err := options.ParseHost(c.String("host"))
	if err != nil {
		return err
	}

	cfg := playground.DefaultConfig()
	cfg.HostID = hostID
	cfg.TotalHosts = totalHosts
	cfg.Prefix = prefix
	cfg.CIDR = c.String("cidr")
	cfg.PerBridge = int(c.Int("instances-per-bridge"))
	cfg.Revert = !c.Bool("no-revert")
	cfg.Redirect = c.Bool("redirect")
	cfg.VxlanID = uint32(c.Uint("vxlan-id"))
	cfg.VxlanPort = uint16(c.Uint("vxlan-port"))
	cfg.VxlanGroup = c.String("vxlan-multicast-group")
	cfg.VxlanDevice = c.String("vxlan-device")

	e, err := playground.NewEnv(cfg)
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	runErr := func() error {
		if err := e.Generate(fanout.Total, fanout.Qdisc, fanout.Commands, fanout.WorkDirs, env); err != nil {
			return err
		}
		if err := e.Deploy(); err != nil {
			return err
		}
		if schedule != nil {
			e.EnablePartition(*schedule)
		}
		return e.Wait(interrupt)
	}()

	e.Clear()
	if !cfg.Revert {
		if err := store.Save("", prefix, e.Plans()); err != nil {
			slog.Error("failed to record plans for cleanup", "err", err)
		}
		slog.Info("network configuration left in place", "prefix", prefix)
	}
	return runErr
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete every namespace, bridge and veth left behind under a prefix",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "prefix",
				Aliases:  []string{"p"},
				Required: true,
				Usage:    "Prefix of the playground environment to clean up",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return cleanup(c.String("prefix"))
		},
	}
}

/**
 * Reverses a recorded plan if one exists, then sweeps the prefix for
 * orphans.
 */
func cleanup(prefix string) error {
	plans, err := store.Load("", prefix)
	if err != nil {
		slog.Warn("failed to load recorded plans", "err", err)
	}
	for _, plan := range plans {
		core.Teardown(core.Config{Prefix: prefix}, plan)
	}
	if plans != nil {
		if err := store.Delete("", prefix); err != nil {
			slog.Warn("failed to forget recorded plans", "err", err)
		}
	}
	result, err := core.SweepPrefix(prefix)
	if err != nil {
		return err
	}
	slog.Info("cleanup completed",
		"namespaces", result.Namespaces,
		"bridges", result.Bridges,
		"veth", result.Veth,
		"vxlan", result.Vxlan,
	)
	return nil
}

func parseCounts(values []string) ([]int, error) {
	counts := make([]int, 0, len(values))
	for _, value := range values {
		count, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("bad --count %q: %w", value, err)
		}
		counts = append(counts, count)
	}
	return counts, nil
}
