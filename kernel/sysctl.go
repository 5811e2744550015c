//go:build linux

package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ARP table ceiling high enough for ~10k namespaces talking to each other.
const neighGcThresh3 = 2048000

/**
 * Sets a sysctl through /proc/sys, comparing the current value first to
 * avoid unnecessary writes.
 * @param name the dotted sysctl name
 * @param value the desired value
 */
func ensureSysctl(name, value string) error {
	path := filepath.Join("/proc/sys", strings.ReplaceAll(name, ".", "/"))
	current, err := os.ReadFile(path)
	if err == nil && strings.TrimSpace(string(current)) == value {
		return nil
	}
	slog.Debug("setting sysctl", "name", name, "value", value)
	if err := os.WriteFile(path, []byte(value+"\n"), 0o644); err != nil {
		return commandErr(err, "sysctl %s=%s", name, value)
	}
	return nil
}

/**
 * Applies the sysctls the playground depends on: bridges must not pass
 * traffic through iptables, the ARP table must fit all instances, and
 * IPv4 forwarding has to be on. Values are set write-through and are not
 * restored on teardown.
 * @return error if any, nil otherwise.
 */
func EnsureSysctls() error {
	// The knob only exists while br_netfilter is loaded; without the
	// module bridges do not call iptables in the first place.
	if err := ensureSysctl("net.bridge.bridge-nf-call-iptables", "0"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("br_netfilter not loaded, skipping bridge-nf-call-iptables")
		} else {
			return err
		}
	}
	if err := ensureSysctl("net.ipv4.neigh.default.gc_thresh3", fmt.Sprintf("%d", neighGcThresh3)); err != nil {
		return err
	}
	return ensureSysctl("net.ipv4.ip_forward", "1")
}
