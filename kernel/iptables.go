//go:build linux

package kernel

import (
	"github.com/coreos/go-iptables/iptables"

	"github.com/dshulyak/playground/network"
)

/**
 * Installs an INPUT DROP rule inside the from-veth's namespace matching
 * the to-veth's source address. Used by the partition agent to cut
 * traffic between buckets.
 * @param from the instance that should stop receiving
 * @param to the instance whose traffic is dropped
 */
func DropPacketsApply(from, to network.NamespaceVeth) error {
	return InNamespace(from.Namespace.Name, func() error {
		ipt, err := iptables.New()
		if err != nil {
			return commandErr(err, "iptables in %s", from.Namespace.Name)
		}
		if err := ipt.Insert("filter", "INPUT", 1, dropRule(to)...); err != nil {
			return commandErr(err, "iptables -I INPUT -s %s -j DROP in %s",
				to.Addr.IP, from.Namespace.Name)
		}
		return nil
	})
}

/**
 * Removes the INPUT DROP rule previously installed by DropPacketsApply.
 */
func DropPacketsRevert(from, to network.NamespaceVeth) error {
	return InNamespace(from.Namespace.Name, func() error {
		ipt, err := iptables.New()
		if err != nil {
			return commandErr(err, "iptables in %s", from.Namespace.Name)
		}
		if err := ipt.Delete("filter", "INPUT", dropRule(to)...); err != nil {
			return commandErr(err, "iptables -D INPUT -s %s -j DROP in %s",
				to.Addr.IP, from.Namespace.Name)
		}
		return nil
	})
}

func dropRule(to network.NamespaceVeth) []string {
	return []string{"-s", to.Addr.IP.String(), "-j", "DROP"}
}
