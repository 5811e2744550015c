package core

import (
	"fmt"
	"sort"

	"github.com/dshulyak/playground/network"
)

/**
 * A sequential stream of disciplines, consumed once per instance across
 * all hosts. Instances past the end of the stream get no qdisc entry.
 */
type QdiscStream struct {
	items []network.Qdisc
	next  int
}

/**
 * Creates a stream over the given disciplines.
 */
func NewQdiscStream(items []network.Qdisc) *QdiscStream {
	return &QdiscStream{items: items}
}

/**
 * @return the next discipline and true, or false when drained.
 */
func (s *QdiscStream) Next() (network.Qdisc, bool) {
	if s == nil || s.next >= len(s.items) {
		return network.Qdisc{}, false
	}
	item := s.items[s.next]
	s.next++
	return item, true
}

/**
 * Lays out one plan per host for n instances total. Instance indices are
 * global: host 0 receives indices [0, n/H + n%H), the following hosts
 * equal chunks after it, so the union of indices across hosts is exactly
 * [0, n). Addresses are drawn from the single pool in the order: bridge
 * addresses first, then instance addresses, ascending index within each
 * host.
 * @param cfg the playground configuration
 * @param n the total number of instances
 * @param hosts the participating hosts
 * @param pool the shared address pool
 * @param qdisc the shared qdisc stream (may be nil)
 * @return one plan per host, or error if any.
 */
func Generate(cfg Config, n int, hosts []Host, pool *network.Pool, qdisc *QdiscStream) ([]*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("hosts must not be empty")
	}
	plans := make([]*Plan, 0, len(hosts))
	start := 0
	for index, host := range hosts {
		chunk := n / len(hosts)
		if index == 0 {
			chunk += n % len(hosts)
		}
		plan, err := generateOne(cfg, start, chunk, len(hosts), host, pool, qdisc)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
		start += chunk
	}
	return plans, nil
}

/**
 * Lays out a single host's plan for instance indices [start, start+chunk).
 */
func generateOne(cfg Config, start, chunk, totalHosts int, host Host, pool *network.Pool, qdisc *QdiscStream) (*Plan, error) {
	plan := NewPlan()

	// Bridges first: the distinct values of index/per_bridge over the
	// chunk, each taking the next pool address in ascending order.
	seen := map[int]struct{}{}
	var order []int
	for index := start; index < start+chunk; index++ {
		bridge := index / cfg.PerBridge
		if _, ok := seen[bridge]; !ok {
			seen[bridge] = struct{}{}
			order = append(order, bridge)
		}
	}
	sort.Ints(order)
	for _, index := range order {
		addr, err := pool.Next()
		if err != nil {
			return nil, err
		}
		plan.Bridges[index] = network.NewBridge(index, cfg.Prefix, addr)
	}

	if totalHosts > 1 {
		plan.Vxlan[0] = network.NewVxlan(cfg.Prefix, cfg.VxlanID, cfg.VxlanPort, cfg.VxlanGroup, host.VxlanDevice)
	}

	for index := start; index < start+chunk; index++ {
		addr, err := pool.Next()
		if err != nil {
			return nil, err
		}
		namespace := network.NewNamespace(cfg.Prefix, index)
		plan.Veth[index] = network.NewNamespaceVeth(index/cfg.PerBridge, addr, namespace)
		if item, ok := qdisc.Next(); ok {
			plan.Qdisc[index] = item
		}
	}
	return plan, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
