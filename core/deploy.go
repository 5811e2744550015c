//go:build linux

package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dshulyak/playground/kernel"
)

/**
 * Applies a plan to the kernel in dependency order: sysctls, bridges,
 * bridge-to-bridge connectors, vxlan, then per-instance namespace, veth
 * and qdisc. The first failure aborts the forward pass; partial state is
 * handed to Teardown, not retried in place.
 * @param cfg the playground configuration
 * @param plan the plan to apply
 * @return error if any, nil otherwise.
 */
func Deploy(cfg Config, plan *Plan) error {
	since := time.Now()
	if err := kernel.EnsureSysctls(); err != nil {
		return err
	}

	bridges := plan.BridgeOrder()
	for _, index := range bridges {
		if err := kernel.BridgeApply(plan.Bridges[index]); err != nil {
			return err
		}
	}

	// Full mesh between the host's bridges.
	for _, first := range bridges {
		for _, second := range bridges {
			if first >= second {
				continue
			}
			if err := kernel.BridgeConnect(cfg.Prefix, plan.Bridges[first], plan.Bridges[second]); err != nil {
				return err
			}
		}
	}

	if vxlan, ok := plan.Vxlan[0]; ok {
		if len(bridges) == 0 {
			return fmt.Errorf("vxlan %s planned without bridges", vxlan.Name)
		}
		if err := kernel.VxlanApply(plan.Bridges[bridges[0]], vxlan); err != nil {
			return err
		}
	}

	for _, index := range sortedKeys(plan.Veth) {
		veth := plan.Veth[index]
		bridge, ok := plan.Bridges[veth.Bridge]
		if !ok {
			return fmt.Errorf("no bridge %d for instance %d", veth.Bridge, index)
		}
		if err := kernel.NamespaceApply(veth.Namespace); err != nil {
			return err
		}
		if err := kernel.VethApply(veth, bridge); err != nil {
			return err
		}
		if qdisc, ok := plan.Qdisc[index]; ok && !qdisc.Empty() {
			if err := kernel.QdiscApply(veth, qdisc); err != nil {
				return err
			}
		}
	}
	slog.Info("deployed", "instances", len(plan.Veth), "bridges", len(bridges), "took", time.Since(since))
	return nil
}

/**
 * Reverses a deployed plan in strict reverse order, best-effort: every
 * failure is logged and the walk continues. Reverting an object that was
 * never applied (or is already gone) only produces a warning.
 * @param cfg the playground configuration
 * @param plan the plan to reverse
 */
func Teardown(cfg Config, plan *Plan) {
	since := time.Now()
	for _, index := range sortedKeys(plan.Veth) {
		if err := kernel.VethRevert(plan.Veth[index]); err != nil {
			slog.Warn("failed to revert veth", "err", err)
		}
	}
	for _, index := range sortedKeys(plan.Veth) {
		if err := kernel.NamespaceRevert(plan.Veth[index].Namespace); err != nil {
			slog.Warn("failed to revert namespace", "err", err)
		}
	}
	bridges := plan.BridgeOrder()
	for _, first := range bridges {
		for _, second := range bridges {
			if first >= second {
				continue
			}
			if err := kernel.BridgeDisconnect(cfg.Prefix, plan.Bridges[first], plan.Bridges[second]); err != nil {
				slog.Warn("failed to disconnect bridges", "err", err)
			}
		}
	}
	if vxlan, ok := plan.Vxlan[0]; ok {
		if err := kernel.VxlanRevert(vxlan); err != nil {
			slog.Warn("failed to revert vxlan", "err", err)
		}
	}
	for _, index := range bridges {
		if err := kernel.BridgeRevert(plan.Bridges[index]); err != nil {
			slog.Warn("failed to revert bridge", "err", err)
		}
	}
	slog.Info("reverted network config", "took", time.Since(since))
}

/**
 * Counts of kernel objects removed by a prefix sweep.
 */
type SweepResult struct {
	Namespaces int
	Bridges    int
	Veth       int
	Vxlan      int
}

/**
 * Deletes every namespace, veth, vxlan device and bridge whose name
 * starts with the prefix. Used by the cleanup entry point to reap
 * orphans when no plan is available.
 * @param prefix the playground prefix
 * @return per-kind deletion counts and the first error, if any.
 */
func SweepPrefix(prefix string) (SweepResult, error) {
	var result SweepResult
	var err error
	if result.Namespaces, err = kernel.NamespaceCleanup(prefix); err != nil {
		return result, err
	}
	if result.Veth, err = kernel.VethCleanup(prefix); err != nil {
		return result, err
	}
	if result.Vxlan, err = kernel.VxlanCleanup(prefix); err != nil {
		return result, err
	}
	if result.Bridges, err = kernel.BridgeCleanup(prefix); err != nil {
		return result, err
	}
	return result, nil
}
