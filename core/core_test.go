package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshulyak/playground/network"
	"github.com/dshulyak/playground/supervisor"
)

func testConfig() Config {
	return Config{
		Prefix:     "test",
		CIDR:       "10.1.0.0/16",
		PerBridge:  1000,
		VxlanID:    100,
		VxlanPort:  4789,
		VxlanGroup: "239.1.1.1",
	}
}

func testHosts(n int) []Host {
	hosts := make([]Host, 0, n)
	for i := 0; i < n; i++ {
		hosts = append(hosts, Host{Name: "host", VxlanDevice: "eth0"})
	}
	return hosts
}

func testPool(t *testing.T, cidr string) *network.Pool {
	t.Helper()
	pool, err := network.NewPool(cidr)
	require.NoError(t, err)
	return pool
}

func TestGenerateMultiHost(t *testing.T) {
	cfg := testConfig()
	const total = 10000
	plans, err := Generate(cfg, total, testHosts(5), testPool(t, cfg.CIDR), nil)
	require.NoError(t, err)
	require.Len(t, plans, 5)
	for _, plan := range plans {
		assert.Len(t, plan.Vxlan, 1)
		assert.Len(t, plan.Bridges, 2)
		assert.Len(t, plan.Veth, 2000)
		assert.Len(t, plan.Qdisc, 0)
	}
}

func TestGenerateSingleHost(t *testing.T) {
	cfg := testConfig()
	qdisc := NewQdiscStream([]network.Qdisc{
		{},
		{Tbf: "rate 1mbit"},
		{Netem: "delay 100ms"},
	})
	plans, err := Generate(cfg, 3, testHosts(1), testPool(t, cfg.CIDR), qdisc)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	plan := plans[0]
	assert.Len(t, plan.Vxlan, 0)
	assert.Len(t, plan.Bridges, 1)
	assert.Len(t, plan.Veth, 3)
	require.Len(t, plan.Qdisc, 3)
	assert.True(t, plan.Qdisc[0].Empty())
	assert.Equal(t, "rate 1mbit", plan.Qdisc[1].Tbf)
	assert.Equal(t, "delay 100ms", plan.Qdisc[2].Netem)
}

func TestGenerateBridgeAssignment(t *testing.T) {
	cfg := testConfig()
	cfg.PerBridge = 3
	plans, err := Generate(cfg, 10, testHosts(1), testPool(t, cfg.CIDR), nil)
	require.NoError(t, err)

	plan := plans[0]
	require.Len(t, plan.Bridges, 4)
	for index, veth := range plan.Veth {
		assert.Equal(t, index/cfg.PerBridge, veth.Bridge)
		assert.Contains(t, plan.Bridges, veth.Bridge)
	}
}

func TestGenerateHostSplit(t *testing.T) {
	for _, tc := range []struct {
		total, hosts int
	}{
		{total: 10, hosts: 3},
		{total: 10000, hosts: 5},
		{total: 7, hosts: 7},
		{total: 5, hosts: 2},
	} {
		cfg := testConfig()
		plans, err := Generate(cfg, tc.total, testHosts(tc.hosts), testPool(t, cfg.CIDR), nil)
		require.NoError(t, err)

		expected := tc.total/tc.hosts + tc.total%tc.hosts
		assert.Len(t, plans[0].Veth, expected)

		// Global instance indices: their union across hosts is [0, total).
		indices := map[int]struct{}{}
		for _, plan := range plans {
			for index := range plan.Veth {
				indices[index] = struct{}{}
			}
		}
		assert.Len(t, indices, tc.total)
		for index := 0; index < tc.total; index++ {
			assert.Contains(t, indices, index)
		}
	}
}

func TestGenerateDistinctAddresses(t *testing.T) {
	cfg := testConfig()
	cfg.PerBridge = 10
	plans, err := Generate(cfg, 100, testHosts(3), testPool(t, cfg.CIDR), nil)
	require.NoError(t, err)

	addresses := map[string]struct{}{}
	record := func(addr network.Addr) {
		_, seen := addresses[addr.String()]
		assert.False(t, seen, "address %s allocated twice", addr)
		addresses[addr.String()] = struct{}{}
	}
	for _, plan := range plans {
		for _, bridge := range plan.Bridges {
			record(bridge.Addr)
		}
		for _, veth := range plan.Veth {
			record(veth.Addr)
		}
	}
}

func TestGenerateAddressesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.CIDR = "10.1.0.0/28"
	_, err := Generate(cfg, 100, testHosts(1), testPool(t, cfg.CIDR), nil)
	require.ErrorIs(t, err, network.ErrAddressesExhausted)
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := testConfig()
	qdisc := []network.Qdisc{{Netem: "delay 10ms"}, {Tbf: "rate 1mbit"}}

	first, err := Generate(cfg, 50, testHosts(2), testPool(t, cfg.CIDR), NewQdiscStream(qdisc))
	require.NoError(t, err)
	second, err := Generate(cfg, 50, testHosts(2), testPool(t, cfg.CIDR), NewQdiscStream(qdisc))
	require.NoError(t, err)

	for i := range first {
		left, err := first[i].Marshal()
		require.NoError(t, err)
		right, err := second[i].Marshal()
		require.NoError(t, err)
		assert.Equal(t, left, right)
	}
}

func TestGenerateValidation(t *testing.T) {
	cfg := testConfig()
	cfg.PerBridge = 0
	_, err := Generate(cfg, 10, testHosts(1), testPool(t, "10.1.0.0/16"), nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.PerBridge = MaxVethPerBridge + 1
	_, err = Generate(cfg, 10, testHosts(1), testPool(t, "10.1.0.0/16"), nil)
	require.Error(t, err)

	cfg = testConfig()
	_, err = Generate(cfg, 10, nil, testPool(t, cfg.CIDR), nil)
	require.Error(t, err)
}

func TestPlanRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.PerBridge = 4
	qdisc := []network.Qdisc{{Tbf: "rate 1mbit", Netem: "delay 5ms"}, {}, {Netem: "loss 2%"}}
	plans, err := Generate(cfg, 10, testHosts(2), testPool(t, cfg.CIDR), NewQdiscStream(qdisc))
	require.NoError(t, err)

	plans[0].Commands[3] = supervisor.CommandConfig{
		Name:    "test-3",
		Command: "echo {index}",
		WorkDir: "/tmp",
		Env:     map[string]string{"KEY": "value"},
	}
	for _, plan := range plans {
		encoded, err := plan.Marshal()
		require.NoError(t, err)

		decoded, err := UnmarshalPlan(encoded)
		require.NoError(t, err)
		assert.Equal(t, plan, decoded)

		again, err := decoded.Marshal()
		require.NoError(t, err)
		assert.Equal(t, encoded, again)
	}
}
