//go:build linux

package playground

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dshulyak/playground/core"
	"github.com/dshulyak/playground/network"
	"github.com/dshulyak/playground/partition"
	"github.com/dshulyak/playground/supervisor"
)

/**
 * Top-level configuration of a playground run.
 */
type Config struct {
	// 1-based identifier of this host and the total number of hosts.
	HostID     int
	TotalHosts int

	Prefix    string
	CIDR      string
	PerBridge int

	// Revert the kernel configuration on Clear.
	Revert bool
	// Redirect child stdout/stderr to files in the working directories.
	Redirect bool

	VxlanID     uint32
	VxlanPort   uint16
	VxlanGroup  string
	VxlanDevice string
}

/**
 * Applies the defaults of the run subcommand.
 */
func DefaultConfig() Config {
	return Config{
		HostID:     1,
		TotalHosts: 1,
		CIDR:       "10.0.0.0/16",
		PerBridge:  core.MaxVethPerBridge,
		Revert:     true,
		VxlanID:    1000,
		VxlanPort:  4789,
		VxlanGroup: "239.1.1.1",
	}
}

/**
 * A playground environment: owns the plans, the supervised children, the
 * partition agent and the error bus. The plans are built once, deployed
 * once and reversed once; the error bus connects the reader goroutines
 * and the partition agent back to the controller.
 */
type Env struct {
	cfg     Config
	coreCfg core.Config

	plans   []*core.Plan
	local   *core.Plan
	running map[int]*supervisor.Execution
	part    *partition.Background
	errs    chan error
}

/**
 * Creates an environment for the given configuration.
 * @return the environment and error if the host identifier is invalid.
 */
func NewEnv(cfg Config) (*Env, error) {
	if cfg.TotalHosts < 1 || cfg.HostID < 1 || cfg.HostID > cfg.TotalHosts {
		return nil, fmt.Errorf("host must be id/total with 1 <= id <= total, got %d/%d", cfg.HostID, cfg.TotalHosts)
	}
	return &Env{
		cfg: cfg,
		coreCfg: core.Config{
			Prefix:     cfg.Prefix,
			CIDR:       cfg.CIDR,
			PerBridge:  cfg.PerBridge,
			VxlanID:    cfg.VxlanID,
			VxlanPort:  cfg.VxlanPort,
			VxlanGroup: cfg.VxlanGroup,
		},
		running: map[int]*supervisor.Execution{},
		errs:    make(chan error, 1024),
	}, nil
}

/**
 * @return the error bus carrying runtime failures from reader goroutines
 * and the partition agent.
 */
func (e *Env) Errors() <-chan error {
	return e.errs
}

/**
 * @return every host's plan, in host order.
 */
func (e *Env) Plans() []*core.Plan {
	return e.plans
}

/**
 * @return this host's plan, nil before Generate.
 */
func (e *Env) Local() *core.Plan {
	return e.local
}

/**
 * Builds the plans for all hosts and keeps the one addressed by the
 * host identifier as local. Purely in-memory; no kernel state changes.
 * @param total the total number of instances across hosts
 * @param qdisc per-instance disciplines in index order (may be shorter)
 * @param commands one command string per instance
 * @param workDirs one working directory per instance
 * @param env environment overrides shared by all instances
 * @return error if any, nil otherwise.
 */
func (e *Env) Generate(total int, qdisc []network.Qdisc, commands []string, workDirs []string, env map[string]string) error {
	pool, err := network.NewPool(e.cfg.CIDR)
	if err != nil {
		return err
	}
	hosts := make([]core.Host, e.cfg.TotalHosts)
	for i := range hosts {
		hosts[i] = core.Host{
			Name:        fmt.Sprintf("host%d", i),
			VxlanDevice: e.cfg.VxlanDevice,
		}
	}
	since := time.Now()
	plans, err := core.Generate(e.coreCfg, total, hosts, pool, core.NewQdiscStream(qdisc))
	if err != nil {
		return err
	}
	chunks := make([]int, len(plans))
	for i, plan := range plans {
		chunks[i] = len(plan.Veth)
	}
	commandMaps, err := supervisor.Generate(e.cfg.Prefix, e.cfg.Redirect, chunks, commands, workDirs, env)
	if err != nil {
		return err
	}
	for i, plan := range plans {
		plan.Commands = commandMaps[i]
	}
	e.plans = plans
	e.local = plans[e.cfg.HostID-1]
	slog.Info("playground generated", "instances", total, "hosts", len(hosts), "took", time.Since(since))
	return nil
}

/**
 * Applies the local plan to the kernel and launches its commands.
 * A failure leaves partial state behind for Clear to reverse.
 */
func (e *Env) Deploy() error {
	if e.local == nil {
		return fmt.Errorf("nothing generated to deploy")
	}
	if err := core.Deploy(e.coreCfg, e.local); err != nil {
		return err
	}
	since := time.Now()
	if err := supervisor.Launch(e.local.Commands, e.running, e.errs); err != nil {
		return err
	}
	slog.Info("commands started", "count", len(e.running), "took", time.Since(since))
	return nil
}

/**
 * Starts the partition agent over the local plan's veths.
 */
func (e *Env) EnablePartition(p partition.Partition) {
	task := partition.NewTask(p, e.local.Veths(), e.errs)
	e.part = partition.Spawn(task)
}

/**
 * Blocks until either the error bus yields a failure or an interrupt
 * signal arrives. An interrupt returns nil; the caller invokes Clear in
 * both cases.
 * @param interrupt the signal channel registered for SIGINT
 */
func (e *Env) Wait(interrupt <-chan os.Signal) error {
	select {
	case <-interrupt:
		slog.Info("received interrupt. wait for playground to cleanup")
		return nil
	case err := <-e.errs:
		return err
	}
}

/**
 * Stops the supervised children, stops the partition agent (reverting
 * any installed rules) and, unless revert is disabled, reverses every
 * kernel configuration change of the local plan. Best-effort throughout.
 */
func (e *Env) Clear() {
	since := time.Now()
	supervisor.Stop(e.running)
	slog.Info("commands stopped", "took", time.Since(since))
	if e.part != nil {
		e.part.Stop()
		e.part = nil
	}
	if e.cfg.Revert && e.local != nil {
		core.Teardown(e.coreCfg, e.local)
	}
}
