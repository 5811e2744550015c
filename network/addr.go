package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

/**
 * Returned by the pool once every usable address in the configured
 * CIDR has been handed out.
 */
var ErrAddressesExhausted = errors.New("run out of ip addresses")

/**
 * An IP address carrying the prefix length of the subnet it was drawn
 * from. Serializes as "ip/prefixlen".
 */
type Addr struct {
	IP        net.IP
	PrefixLen int
}

/**
 * @return the CIDR notation of the address, e.g. "10.0.0.1/16".
 */
func (a Addr) String() string {
	return fmt.Sprintf("%s/%d", a.IP, a.PrefixLen)
}

/**
 * @return the address and mask as a *net.IPNet.
 */
func (a Addr) IPNet() *net.IPNet {
	bits := 32
	if a.IP.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   a.IP,
		Mask: net.CIDRMask(a.PrefixLen, bits),
	}
}

func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := ParseAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

/**
 * Parses an "ip/prefixlen" string into an Addr. IPv4 addresses are
 * stored in their 4-byte form, matching the addresses minted by the
 * pool, so parsed and pool-drawn values of the same address compare
 * equal.
 * @param s the string to parse
 * @return the parsed address and error if any
 */
func ParseAddr(s string) (Addr, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return Addr{}, fmt.Errorf("parse addr %q: %w", s, err)
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	ones, _ := ipnet.Mask.Size()
	return Addr{IP: ip, PrefixLen: ones}, nil
}

/**
 * A monotonically-advancing allocator over a subnet. Every address in a
 * plan is drawn from a single pool, so addresses are never reused. The
 * network and broadcast addresses are skipped.
 */
type Pool struct {
	subnet *net.IPNet
	prefix int
	cur    net.IP
	last   net.IP
}

/**
 * Creates a pool over the given CIDR, e.g. "10.0.0.0/16".
 * @param subnet the CIDR string
 * @return the pool and error if any
 */
func NewPool(subnet string) (*Pool, error) {
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid cidr %q: %w", subnet, err)
	}
	if ipnet.IP.To4() == nil {
		return nil, fmt.Errorf("only ipv4 subnets are supported, got %q", subnet)
	}
	prefix, _ := ipnet.Mask.Size()
	first, last := cidr.AddressRange(ipnet)
	return &Pool{
		subnet: ipnet,
		prefix: prefix,
		// first usable host is one past the network address
		cur:  cidr.Inc(first),
		last: last,
	}, nil
}

/**
 * Hands out the next free address.
 * @return the address, or ErrAddressesExhausted when the pool is drained.
 */
func (p *Pool) Next() (Addr, error) {
	if !p.cur.Equal(p.last) && p.subnet.Contains(p.cur) {
		ip := append(net.IP(nil), p.cur...)
		// Same canonical 4-byte form as ParseAddr.
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		addr := Addr{IP: ip, PrefixLen: p.prefix}
		p.cur = cidr.Inc(p.cur)
		return addr, nil
	}
	return Addr{}, ErrAddressesExhausted
}
