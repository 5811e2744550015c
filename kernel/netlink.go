//go:build linux

package kernel

import (
	stdnet "net"

	"github.com/vishvananda/netlink"

	"github.com/dshulyak/playground/network"
)

/**
 * Creates the bridge link, assigns its subnet address and brings it up.
 * @param bridge the bridge to create
 * @return error if any, nil otherwise.
 */
func BridgeApply(bridge network.Bridge) error {
	link := &netlink.Bridge{
		LinkAttrs: netlink.LinkAttrs{Name: bridge.Name},
	}
	if err := netlink.LinkAdd(link); err != nil {
		return commandErr(err, "link add %s type bridge", bridge.Name)
	}
	if err := netlink.AddrAdd(link, &netlink.Addr{IPNet: bridge.Addr.IPNet()}); err != nil {
		return commandErr(err, "addr add %s dev %s", bridge.Addr, bridge.Name)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return commandErr(err, "link set %s up", bridge.Name)
	}
	return nil
}

/**
 * Deletes the bridge link.
 */
func BridgeRevert(bridge network.Bridge) error {
	link, err := netlink.LinkByName(bridge.Name)
	if err != nil {
		return commandErr(err, "link del %s", bridge.Name)
	}
	if err := netlink.LinkDel(link); err != nil {
		return commandErr(err, "link del %s", bridge.Name)
	}
	return nil
}

/**
 * Creates the veth pair for an instance. The guest end is moved into the
 * instance namespace by file descriptor at creation time, the host end is
 * enslaved to the owning bridge. Inside the namespace the guest address
 * is assigned, lo and the guest end are brought up, and a default IPv4
 * route via the bridge address is installed.
 * @param veth the veth pair to create
 * @param bridge the bridge owning the host end
 * @return error if any, nil otherwise.
 */
func VethApply(veth network.NamespaceVeth, bridge network.Bridge) error {
	ns, err := namespaceHandle(veth.Namespace.Name)
	if err != nil {
		return commandErr(err, "veth apply %s", veth.Host())
	}
	defer ns.Close()

	master, err := netlink.LinkByName(bridge.Name)
	if err != nil {
		return commandErr(err, "link show %s", bridge.Name)
	}

	link := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{
			Name:        veth.Host(),
			MasterIndex: master.Attrs().Index,
		},
		PeerName:      veth.Guest(),
		PeerNamespace: netlink.NsFd(ns),
	}
	if err := netlink.LinkAdd(link); err != nil {
		return commandErr(err, "link add %s type veth peer name %s", veth.Host(), veth.Guest())
	}

	// Everything guest-side goes through a handle bound to the namespace.
	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		return commandErr(err, "netlink handle for %s", veth.Namespace.Name)
	}
	defer handle.Close()

	guest, err := handle.LinkByName(veth.Guest())
	if err != nil {
		return commandErr(err, "link show %s in %s", veth.Guest(), veth.Namespace.Name)
	}
	if err := handle.AddrAdd(guest, &netlink.Addr{IPNet: veth.Addr.IPNet()}); err != nil {
		return commandErr(err, "addr add %s dev %s in %s", veth.Addr, veth.Guest(), veth.Namespace.Name)
	}
	lo, err := handle.LinkByName("lo")
	if err != nil {
		return commandErr(err, "link show lo in %s", veth.Namespace.Name)
	}
	if err := handle.LinkSetUp(lo); err != nil {
		return commandErr(err, "link set lo up in %s", veth.Namespace.Name)
	}
	if err := handle.LinkSetUp(guest); err != nil {
		return commandErr(err, "link set %s up in %s", veth.Guest(), veth.Namespace.Name)
	}
	route := &netlink.Route{
		LinkIndex: guest.Attrs().Index,
		Scope:     netlink.SCOPE_UNIVERSE,
		Gw:        bridge.Addr.IP,
		Dst: &stdnet.IPNet{
			IP:   stdnet.IPv4zero,
			Mask: stdnet.IPv4Mask(0, 0, 0, 0),
		},
	}
	if err := handle.RouteAdd(route); err != nil {
		return commandErr(err, "route add default via %s in %s", bridge.Addr.IP, veth.Namespace.Name)
	}

	host, err := netlink.LinkByName(veth.Host())
	if err != nil {
		return commandErr(err, "link show %s", veth.Host())
	}
	if err := netlink.LinkSetUp(host); err != nil {
		return commandErr(err, "link set %s up", veth.Host())
	}
	return nil
}

/**
 * Deletes the host end of the veth pair. The kernel removes the guest
 * end with it.
 */
func VethRevert(veth network.NamespaceVeth) error {
	link, err := netlink.LinkByName(veth.Host())
	if err != nil {
		return commandErr(err, "link del %s", veth.Host())
	}
	if err := netlink.LinkDel(link); err != nil {
		return commandErr(err, "link del %s", veth.Host())
	}
	return nil
}

/**
 * Creates the VXLAN device bound to the carrier, enslaves it to the
 * given bridge and brings it up. Peers are discovered over the multicast
 * group.
 * @param bridge bridge 0 of the host
 * @param vxlan the overlay device to create
 */
func VxlanApply(bridge network.Bridge, vxlan network.Vxlan) error {
	attrs := netlink.LinkAttrs{Name: vxlan.Name}
	link := &netlink.Vxlan{
		LinkAttrs: attrs,
		VxlanId:   int(vxlan.ID),
		Group:     stdnet.ParseIP(vxlan.Group),
		Port:      int(vxlan.Port),
	}
	if vxlan.Device != "" {
		carrier, err := netlink.LinkByName(vxlan.Device)
		if err != nil {
			return commandErr(err, "link show %s", vxlan.Device)
		}
		link.VtepDevIndex = carrier.Attrs().Index
	}
	if err := netlink.LinkAdd(link); err != nil {
		return commandErr(err, "link add %s type vxlan id %d group %s dstport %d dev %s",
			vxlan.Name, vxlan.ID, vxlan.Group, vxlan.Port, vxlan.Device)
	}
	master, err := netlink.LinkByName(bridge.Name)
	if err != nil {
		return commandErr(err, "link show %s", bridge.Name)
	}
	if err := netlink.LinkSetMaster(link, master); err != nil {
		return commandErr(err, "link set %s master %s", vxlan.Name, bridge.Name)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return commandErr(err, "link set %s up", vxlan.Name)
	}
	return nil
}

/**
 * Deletes the VXLAN device.
 */
func VxlanRevert(vxlan network.Vxlan) error {
	link, err := netlink.LinkByName(vxlan.Name)
	if err != nil {
		return commandErr(err, "link del %s", vxlan.Name)
	}
	if err := netlink.LinkDel(link); err != nil {
		return commandErr(err, "link del %s", vxlan.Name)
	}
	return nil
}
