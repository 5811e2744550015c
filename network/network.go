package network

import "fmt"

/**
 * A network namespace, one per command instance.
 */
type Namespace struct {
	Name string `json:"name"`
}

/**
 * Builds the namespace name for the given prefix and instance index.
 * Names are deterministic so that two planner invocations with the same
 * inputs produce byte-identical kernel object names.
 * @param prefix the playground prefix
 * @param index the 0-based instance index
 * @return the namespace name
 */
func NamespaceName(prefix string, index int) string {
	return fmt.Sprintf("%s-%d", prefix, index)
}

/**
 * Creates a namespace value for the given prefix and instance index.
 */
func NewNamespace(prefix string, index int) Namespace {
	return Namespace{Name: NamespaceName(prefix, index)}
}

/**
 * A kernel bridge owning the first address of its slice of the pool.
 */
type Bridge struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Addr  Addr   `json:"addr"`
}

/**
 * Creates a bridge value named "<prefix>b<index>".
 */
func NewBridge(index int, prefix string, addr Addr) Bridge {
	return Bridge{
		Index: index,
		Name:  fmt.Sprintf("%sb%d", prefix, index),
		Addr:  addr,
	}
}

/**
 * A veth pair between a namespace and its bridge. The guest end lives
 * inside the namespace and carries the address; the host end is enslaved
 * to the bridge identified by Bridge.
 */
type NamespaceVeth struct {
	Bridge    int       `json:"bridge"`
	Addr      Addr      `json:"addr"`
	Namespace Namespace `json:"namespace"`
}

/**
 * Creates a veth pair value attached to the given bridge index.
 */
func NewNamespaceVeth(bridge int, addr Addr, namespace Namespace) NamespaceVeth {
	return NamespaceVeth{
		Bridge:    bridge,
		Addr:      addr,
		Namespace: namespace,
	}
}

/**
 * @return the name of the end living inside the namespace.
 */
func (v NamespaceVeth) Guest() string {
	return fmt.Sprintf("v-%s-ns", v.Namespace.Name)
}

/**
 * @return the name of the end enslaved to the bridge on the host.
 */
func (v NamespaceVeth) Host() string {
	return fmt.Sprintf("v-%s-br", v.Namespace.Name)
}

/**
 * Optional traffic shaping for the guest end of a veth. Both values are
 * opaque option strings passed verbatim to tc. If both are present tbf is
 * the root qdisc and netem hangs off its first class.
 */
type Qdisc struct {
	Tbf   string `json:"tbf,omitempty"`
	Netem string `json:"netem,omitempty"`
}

/**
 * @return true if neither discipline is configured.
 */
func (q Qdisc) Empty() bool {
	return q.Tbf == "" && q.Netem == ""
}

/**
 * A VXLAN overlay device, at most one per host. Enslaved to bridge 0 and
 * bridging multicast-discovered peers over the carrier device.
 */
type Vxlan struct {
	Name   string `json:"name"`
	ID     uint32 `json:"id"`
	Port   uint16 `json:"port"`
	Group  string `json:"group"`
	Device string `json:"device"`
}

/**
 * Creates the vxlan device value for the given prefix.
 */
func NewVxlan(prefix string, id uint32, port uint16, group, device string) Vxlan {
	return Vxlan{
		Name:   fmt.Sprintf("vx-%s", prefix),
		ID:     id,
		Port:   port,
		Group:  group,
		Device: device,
	}
}

/**
 * Names of the veth pair joining bridges i and j on the same host. End 0
 * is enslaved to bridge i, end 1 to bridge j.
 * @param prefix the playground prefix
 * @param i the lower bridge index
 * @param j the higher bridge index
 */
func ConnectorNames(prefix string, i, j int) (string, string) {
	return fmt.Sprintf("v-%s-c%d%d-0", prefix, i, j),
		fmt.Sprintf("v-%s-c%d%d-1", prefix, i, j)
}
