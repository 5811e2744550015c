package network

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	ns := NewNamespace("p-ab", 7)
	assert.Equal(t, "p-ab-7", ns.Name)

	addr, err := ParseAddr("10.0.0.1/16")
	require.NoError(t, err)
	bridge := NewBridge(2, "p-ab", addr)
	assert.Equal(t, "p-abb2", bridge.Name)

	veth := NewNamespaceVeth(2, addr, ns)
	assert.Equal(t, "v-p-ab-7-ns", veth.Guest())
	assert.Equal(t, "v-p-ab-7-br", veth.Host())

	vxlan := NewVxlan("p-ab", 100, 4789, "239.1.1.1", "eth0")
	assert.Equal(t, "vx-p-ab", vxlan.Name)

	zero, one := ConnectorNames("p-ab", 0, 2)
	assert.Equal(t, "v-p-ab-c02-0", zero)
	assert.Equal(t, "v-p-ab-c02-1", one)
}

func TestExpandPrefix(t *testing.T) {
	expanded, err := ExpandPrefix("p-XX")
	require.NoError(t, err)
	require.Len(t, expanded, 4)
	assert.True(t, strings.HasPrefix(expanded, "p-"))
	for _, c := range expanded[2:] {
		assert.Contains(t, base62, string(c))
	}

	// Two expansions differ with overwhelming probability.
	same := 0
	for i := 0; i < 16; i++ {
		other, err := ExpandPrefix("p-XX")
		require.NoError(t, err)
		if other == expanded {
			same++
		}
	}
	assert.Less(t, same, 16)

	// Literal characters pass through untouched.
	fixed, err := ExpandPrefix("play")
	require.NoError(t, err)
	assert.Equal(t, "play", fixed)

	_, err = ExpandPrefix("too-long-XXX")
	require.Error(t, err)

	_, err = ExpandPrefix("")
	require.Error(t, err)
}

func TestPoolSequential(t *testing.T) {
	pool, err := NewPool("10.0.0.0/24")
	require.NoError(t, err)

	first, err := pool.Next()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1/24", first.String())

	second, err := pool.Next()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2/24", second.String())
}

func TestPoolExhausted(t *testing.T) {
	pool, err := NewPool("10.0.0.0/30")
	require.NoError(t, err)

	// /30 leaves two usable addresses.
	for i := 0; i < 2; i++ {
		_, err := pool.Next()
		require.NoError(t, err)
	}
	_, err = pool.Next()
	require.ErrorIs(t, err, ErrAddressesExhausted)
}

func TestPoolRejectsIPv6(t *testing.T) {
	_, err := NewPool("fd00::/64")
	require.Error(t, err)
}

func TestAddrRoundTrip(t *testing.T) {
	addr, err := ParseAddr("10.3.2.1/16")
	require.NoError(t, err)

	text, err := addr.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "10.3.2.1/16", string(text))

	var decoded Addr
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, addr, decoded)
}

func TestAddrCanonicalForm(t *testing.T) {
	pool, err := NewPool("10.0.0.0/24")
	require.NoError(t, err)
	minted, err := pool.Next()
	require.NoError(t, err)

	// Pool-minted and parsed addresses of the same value must compare
	// equal, so plans survive a serialization round trip unchanged.
	parsed, err := ParseAddr(minted.String())
	require.NoError(t, err)
	assert.Equal(t, minted, parsed)
	assert.Len(t, parsed.IP, 4)
	assert.Len(t, minted.IP, 4)
}
