package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dshulyak/playground/agent"
	"github.com/dshulyak/playground/core"
	"github.com/dshulyak/playground/logger"
	"github.com/dshulyak/playground/network"
	"github.com/dshulyak/playground/options"
	"github.com/dshulyak/playground/supervisor"
	"github.com/dshulyak/playground/version"
)

/**
 * Application entry point.
 */
func main() {
	cmd := &cli.Command{
		Name:    "playctl",
		Usage:   "Control playground agents on several hosts.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Agent address to connect to, host:port. Order defines host order",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "Log verbosity (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			hostsCommand(),
			previewCommand(),
			runCommand(),
			stopCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

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

func executionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "command",
			Aliases: []string{"c"},
			Usage:   "Command to execute. Occurrences of {index} are replaced with the instance index",
		},
		&cli.StringSliceFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of instances per command",
		},
		&cli.StringSliceFlag{
			Name:  "tbf",
			Usage: "man tbf. Passed as is to tc qdisc after the tbf keyword",
		},
		&cli.StringSliceFlag{
			Name:  "netem",
			Usage: "man netem. Passed as is to tc qdisc after the netem keyword",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variable to set for the commands as KEY=VALUE",
		},
		&cli.StringSliceFlag{
			Name:    "work-dir",
			Aliases: []string{"w"},
			Usage:   "Working directory for the command on the agent hosts",
		},
		&cli.StringFlag{
			Name:  "cidr",
			Value: "10.0.0.0/16",
			Usage: "Every bridge and instance is given an address from this cidr",
		},
		&cli.StringFlag{
			Name:    "prefix",
			Aliases: []string{"p"},
			Value:   "p-XX",
			Usage:   "Prefix for every kernel object. Each literal X is replaced by a random character",
		},
		&cli.IntFlag{
			Name:  "instances-per-bridge",
			Value: core.MaxVethPerBridge,
			Usage: "Number of instances attached to a single bridge",
		},
		&cli.BoolFlag{
			Name:  "redirect",
			Usage: "Redirect stdout and stderr of the commands to files on the agent hosts",
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
	}
}

func hostsCommand() *cli.Command {
	return &cli.Command{
		Name:  "hosts",
		Usage: "Show the status of every agent",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return printHosts(c.StringSlice("socket"))
		},
	}
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Generate the per-host plans and print them without deploying",
		Flags: executionFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			payloads, err := generate(c)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(payloads)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Push the generated plans to the agents and trigger their workers",
		Flags: executionFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return run(c)
		},
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the workers on every agent",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			for _, socket := range c.StringSlice("socket") {
				var status agent.StatusResponse
				if err := postJSON(socket, "/worker/stop", nil, &status); err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", socket, status.Status)
			}
			return nil
		},
	}
}

/**
 * Generates one agent payload per socket, using each agent's own vxlan
 * device reported on /host.
 */
func generate(c *cli.Command) ([]agent.Data, error) {
	sockets := c.StringSlice("socket")
	if len(sockets) == 0 {
		return nil, fmt.Errorf("requires atleast one agent. use --socket or -s to provide agents")
	}
	counts, err := parseCounts(c.StringSlice("count"))
	if err != nil {
		return nil, err
	}
	fanout, err := options.NewFanout(
		c.StringSlice("command"),
		counts,
		c.StringSlice("tbf"),
		c.StringSlice("netem"),
		c.StringSlice("work-dir"),
	)
	if err != nil {
		return nil, err
	}
	env, err := options.ParseEnvList(c.StringSlice("env"))
	if err != nil {
		return nil, err
	}
	prefix, err := network.ExpandPrefix(c.String("prefix"))
	if err != nil {
		return nil, err
	}

	hosts := make([]core.Host, 0, len(sockets))
	for _, socket := range sockets {
		var info agent.HostInfo
		if err := getJSON(socket, "/host", &info); err != nil {
			return nil, fmt.Errorf("failed to download host info from %s: %w", socket, err)
		}
		hosts = append(hosts, core.Host{Name: info.Hostname, VxlanDevice: info.VxlanDevice})
	}

	cfg := core.Config{
		Prefix:     prefix,
		CIDR:       c.String("cidr"),
		PerBridge:  int(c.Int("instances-per-bridge")),
		VxlanID:    uint32(c.Uint("vxlan-id")),
		VxlanPort:  uint16(c.Uint("vxlan-port")),
		VxlanGroup: c.String("vxlan-multicast-group"),
	}
	pool, err := network.NewPool(cfg.CIDR)
	if err != nil {
		return nil, err
	}
	plans, err := core.Generate(cfg, fanout.Total, hosts, pool, core.NewQdiscStream(fanout.Qdisc))
	if err != nil {
		return nil, err
	}
	chunks := make([]int, len(plans))
	for i, plan := range plans {
		chunks[i] = len(plan.Veth)
	}
	commandMaps, err := supervisor.Generate(prefix, c.Bool("redirect"), chunks, fanout.Commands, fanout.WorkDirs, env)
	if err != nil {
		return nil, err
	}
	payloads := make([]agent.Data, len(plans))
	for i, plan := range plans {
		plan.Commands = commandMaps[i]
		payloads[i] = agent.Data{Config: cfg, Plan: plan}
	}
	return payloads, nil
}

/**
 * Pushes the plans, triggers every worker and polls the statuses until
 * all workers settle or an interrupt requests a stop everywhere.
 */
func run(c *cli.Command) error {
	sockets := c.StringSlice("socket")
	payloads, err := generate(c)
	if err != nil {
		return err
	}
	for i, socket := range sockets {
		var status agent.StatusResponse
		if err := postJSON(socket, "/network", payloads[i], &status); err != nil {
			return fmt.Errorf("failed to push plan to %s: %w", socket, err)
		}
	}
	for _, socket := range sockets {
		var status agent.StatusResponse
		if err := postJSON(socket, "/worker/run", nil, &status); err != nil {
			return fmt.Errorf("failed to trigger worker on %s: %w", socket, err)
		}
		fmt.Printf("%s: %s run %s\n", socket, status.Status, status.RunID)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	for {
		select {
		case <-interrupt:
			fmt.Println("received interrupt, stopping workers")
			for _, socket := range sockets {
				var status agent.StatusResponse
				if err := postJSON(socket, "/worker/stop", nil, &status); err != nil {
					fmt.Printf("%s: stop failed: %v\n", socket, err)
				}
			}
		case <-time.After(2 * time.Second):
		}
		settled := true
		var failures []string
		for _, socket := range sockets {
			var status agent.StatusResponse
			if err := getJSON(socket, "/worker/status", &status); err != nil {
				return fmt.Errorf("failed to download worker status from %s: %w", socket, err)
			}
			switch status.Status {
			case agent.StatusStopped:
			case agent.StatusFailed:
				failures = append(failures, fmt.Sprintf("%s: %s", socket, status.Error))
			default:
				settled = false
			}
		}
		if settled {
			if len(failures) > 0 {
				return fmt.Errorf("workers failed: %v", failures)
			}
			fmt.Println("all workers stopped")
			return nil
		}
	}
}

func printHosts(sockets []string) error {
	writer := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ORDER\tSOCKET\tSTATUS\tNAME\tVXLAN DEVICE")
	for i, socket := range sockets {
		var status agent.StatusResponse
		var info agent.HostInfo
		statusErr := getJSON(socket, "/worker/status", &status)
		infoErr := getJSON(socket, "/host", &info)
		if statusErr != nil || infoErr != nil {
			fmt.Fprintf(writer, "%d\t%s\tERROR\t%v\t\n", i, socket, nonNil(statusErr, infoErr))
			continue
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", i, socket, status.Status, info.Hostname, info.VxlanDevice)
	}
	return writer.Flush()
}

func nonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseCounts(values []string) ([]int, error) {
	counts := make([]int, 0, len(values))
	for _, value := range values {
		count := 0
		if _, err := fmt.Sscanf(value, "%d", &count); err != nil {
			return nil, fmt.Errorf("bad --count %q: %w", value, err)
		}
		counts = append(counts, count)
	}
	return counts, nil
}

var client = &http.Client{Timeout: 10 * time.Second}

func getJSON(socket, path string, out any) error {
	resp, err := client.Get(fmt.Sprintf("http://%s%s", socket, path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(socket, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if body == nil {
		encoded = nil
	}
	resp, err := client.Post(fmt.Sprintf("http://%s%s", socket, path), "application/json", bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("POST %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
