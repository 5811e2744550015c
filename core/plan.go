package core

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/dshulyak/playground/network"
	"github.com/dshulyak/playground/supervisor"
)

// Hard kernel limit on ports per bridge; see br_private.h (1<<10, with a
// few ports lost to the bridge itself and the overlay devices).
const MaxVethPerBridge = 1000

/**
 * Playground-wide configuration shared by the planner, the deployer and
 * teardown.
 */
type Config struct {
	Prefix     string `json:"prefix"`
	CIDR       string `json:"cidr"`
	PerBridge  int    `json:"per_bridge"`
	VxlanID    uint32 `json:"vxlan_id"`
	VxlanPort  uint16 `json:"vxlan_port"`
	VxlanGroup string `json:"vxlan_multicast_group"`
}

/**
 * Validates the configuration values the planner depends on.
 * @return error describing the first invalid value, nil otherwise.
 */
func (c Config) Validate() error {
	if c.Prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	if c.PerBridge <= 0 || c.PerBridge > MaxVethPerBridge {
		return fmt.Errorf("instances per bridge must be in (0, %d], got %d", MaxVethPerBridge, c.PerBridge)
	}
	if _, _, err := net.ParseCIDR(c.CIDR); err != nil {
		return fmt.Errorf("invalid cidr %q: %w", c.CIDR, err)
	}
	return nil
}

/**
 * A participating host: its name and the device carrying vxlan traffic.
 */
type Host struct {
	Name        string `json:"name"`
	VxlanDevice string `json:"vxlan_device"`
}

/**
 * The fully-resolved description of what one host creates. Built once by
 * the planner, applied once by the deployer, reversed once by teardown.
 * The value is immutable after planning and serializable so a controller
 * can ship it to a peer host.
 */
type Plan struct {
	// At most one overlay device, stored under key 0.
	Vxlan map[int]network.Vxlan `json:"vxlan"`
	// Bridges keyed by bridge index.
	Bridges map[int]network.Bridge `json:"bridges"`
	// One veth pair per instance, keyed by instance index.
	Veth map[int]network.NamespaceVeth `json:"veth"`
	// Optional disciplines, a subset of the veth keys.
	Qdisc map[int]network.Qdisc `json:"qdisc"`
	// Commands to supervise, a subset of the veth keys.
	Commands map[int]supervisor.CommandConfig `json:"commands"`
}

/**
 * Creates an empty plan.
 */
func NewPlan() *Plan {
	return &Plan{
		Vxlan:    map[int]network.Vxlan{},
		Bridges:  map[int]network.Bridge{},
		Veth:     map[int]network.NamespaceVeth{},
		Qdisc:    map[int]network.Qdisc{},
		Commands: map[int]supervisor.CommandConfig{},
	}
}

/**
 * @return the instance veths in ascending index order.
 */
func (p *Plan) Veths() []network.NamespaceVeth {
	veths := make([]network.NamespaceVeth, 0, len(p.Veth))
	for _, index := range sortedKeys(p.Veth) {
		veths = append(veths, p.Veth[index])
	}
	return veths
}

/**
 * @return the bridge indices in ascending order.
 */
func (p *Plan) BridgeOrder() []int {
	return sortedKeys(p.Bridges)
}

/**
 * Serializes the plan with its stable schema.
 */
func (p *Plan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

/**
 * Deserializes a plan previously produced by Marshal.
 */
func UnmarshalPlan(data []byte) (*Plan, error) {
	plan := NewPlan()
	if err := json.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return plan, nil
}
