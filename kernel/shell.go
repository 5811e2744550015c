//go:build linux

package kernel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/dshulyak/playground/network"
)

/**
 * Runs a single ip/tc invocation and returns its stdout. A non-zero exit
 * turns into a *CommandError carrying the command text and stderr.
 * @param cmd the full command line, split on whitespace
 */
func execute(cmd string) ([]byte, error) {
	slog.Debug("running", "cmd", cmd)
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil, &CommandError{Cmd: cmd, Err: fmt.Errorf("empty command")}
	}
	var stdout, stderr bytes.Buffer
	shell := exec.Command(fields[0], fields[1:]...)
	shell.Stdout = &stdout
	shell.Stderr = &stderr
	if err := shell.Run(); err != nil {
		return nil, &CommandError{
			Cmd:    cmd,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

/**
 * Attaches the configured disciplines to the guest end of the veth inside
 * its namespace. With both disciplines present tbf is the root qdisc and
 * netem hangs off class 1:1; netem alone takes the root.
 * @param veth the instance veth
 * @param qdisc the disciplines to apply
 */
func QdiscApply(veth network.NamespaceVeth, qdisc network.Qdisc) error {
	if qdisc.Tbf != "" {
		if _, err := execute(fmt.Sprintf(
			"ip netns exec %s tc qdisc add dev %s root handle 1: tbf %s",
			veth.Namespace.Name, veth.Guest(), qdisc.Tbf,
		)); err != nil {
			return err
		}
	}
	if qdisc.Netem != "" {
		handle := "root handle 1:"
		if qdisc.Tbf != "" {
			handle = "parent 1:1 handle 10:"
		}
		if _, err := execute(fmt.Sprintf(
			"ip netns exec %s tc qdisc add dev %s %s netem %s",
			veth.Namespace.Name, veth.Guest(), handle, qdisc.Netem,
		)); err != nil {
			return err
		}
	}
	return nil
}

/**
 * Joins two bridges on the same host with a dedicated veth pair, one end
 * enslaved to each bridge.
 * @param prefix the playground prefix
 * @param first the lower-indexed bridge
 * @param second the higher-indexed bridge
 */
func BridgeConnect(prefix string, first, second network.Bridge) error {
	zero, one := network.ConnectorNames(prefix, first.Index, second.Index)
	if _, err := execute(fmt.Sprintf("ip link add %s type veth peer name %s", zero, one)); err != nil {
		return err
	}
	if _, err := execute(fmt.Sprintf("ip link set %s master %s", zero, first.Name)); err != nil {
		return err
	}
	if _, err := execute(fmt.Sprintf("ip link set %s master %s", one, second.Name)); err != nil {
		return err
	}
	if _, err := execute(fmt.Sprintf("ip link set %s up", zero)); err != nil {
		return err
	}
	if _, err := execute(fmt.Sprintf("ip link set %s up", one)); err != nil {
		return err
	}
	return nil
}

/**
 * Removes the connector pair between two bridges. Deleting one end
 * removes both.
 */
func BridgeDisconnect(prefix string, first, second network.Bridge) error {
	zero, _ := network.ConnectorNames(prefix, first.Index, second.Index)
	_, err := execute(fmt.Sprintf("ip link del %s", zero))
	return err
}

/**
 * Deletes every named network namespace whose name starts with the
 * prefix.
 * @return the number of deleted namespaces.
 */
func NamespaceCleanup(prefix string) (int, error) {
	output, err := execute("ip -json netns list")
	if err != nil {
		return 0, err
	}
	names, err := parseListing(output, "name", prefix)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, name := range names {
		if _, err := execute(fmt.Sprintf("ip netns del %s", name)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

/**
 * Deletes every bridge whose name starts with the prefix.
 * @return the number of deleted bridges.
 */
func BridgeCleanup(prefix string) (int, error) {
	return linkCleanup("bridge", prefix)
}

/**
 * Deletes every veth whose name starts with "v-<prefix>". Both instance
 * veths and bridge connectors match.
 * @return the number of links deleted by name; a peer removed together
 * with its other end is not counted.
 */
func VethCleanup(prefix string) (int, error) {
	return linkCleanup("veth", fmt.Sprintf("v-%s", prefix))
}

/**
 * Deletes every vxlan device whose name starts with "vx-<prefix>".
 * @return the number of deleted links.
 */
func VxlanCleanup(prefix string) (int, error) {
	return linkCleanup("vxlan", fmt.Sprintf("vx-%s", prefix))
}

func linkCleanup(kind, prefix string) (int, error) {
	output, err := execute(fmt.Sprintf("ip -json link show type %s", kind))
	if err != nil {
		return 0, err
	}
	names, err := parseListing(output, "ifname", prefix)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, name := range names {
		// Deleting one end of a veth pair removes its peer, which is in
		// the same listing; a link that is already gone is skipped.
		if _, err := execute(fmt.Sprintf("ip link show %s", name)); err != nil {
			continue
		}
		if _, err := execute(fmt.Sprintf("ip link del %s", name)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

/**
 * Parses an `ip -json` listing and returns the values of the given key
 * that start with the prefix. An empty listing produces no matches.
 * @param output the raw json listing
 * @param key the object key holding the name
 * @param prefix the name prefix to filter by
 */
func parseListing(output []byte, key, prefix string) ([]string, error) {
	if len(bytes.TrimSpace(output)) == 0 {
		return nil, nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("parse ip -json output: %w", err)
	}
	var matched []string
	for _, entry := range entries {
		raw, ok := entry[key]
		if !ok {
			continue
		}
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			matched = append(matched, name)
		}
	}
	return matched, nil
}
