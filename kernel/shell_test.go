//go:build linux

package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListing(t *testing.T) {
	// ip -json netns list
	namespaces := []byte(`[{"name":"p-ab-0"},{"name":"p-ab-1"},{"name":"other-0"}]`)
	names, err := parseListing(namespaces, "name", "p-ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-ab-0", "p-ab-1"}, names)

	// ip -json link show type bridge
	bridges := []byte(`[
		{"ifindex":4,"ifname":"p-abb0","flags":["BROADCAST","MULTICAST","UP"],"mtu":1500},
		{"ifindex":7,"ifname":"docker0","flags":["BROADCAST","MULTICAST"],"mtu":1500}
	]`)
	names, err = parseListing(bridges, "ifname", "p-ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-abb0"}, names)

	// Veth names carry the v- prefix in front of the playground prefix.
	veths := []byte(`[
		{"ifname":"v-p-ab-0-br","link_index":2},
		{"ifname":"v-p-ab-c01-0","link_index":3},
		{"ifname":"v-other-br","link_index":4}
	]`)
	names, err = parseListing(veths, "ifname", "v-p-ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"v-p-ab-0-br", "v-p-ab-c01-0"}, names)
}

func TestParseListingEmpty(t *testing.T) {
	names, err := parseListing(nil, "name", "p-ab")
	require.NoError(t, err)
	assert.Empty(t, names)

	names, err = parseListing([]byte("\n"), "name", "p-ab")
	require.NoError(t, err)
	assert.Empty(t, names)

	names, err = parseListing([]byte(`[]`), "name", "p-ab")
	require.NoError(t, err)
	assert.Empty(t, names)

	// Entries without the key are skipped, not an error.
	names, err = parseListing([]byte(`[{"ifindex":1}]`), "ifname", "p-ab")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestParseListingInvalid(t *testing.T) {
	_, err := parseListing([]byte(`not json`), "name", "p-ab")
	require.Error(t, err)
}

func TestCommandError(t *testing.T) {
	_, err := execute("false")
	require.Error(t, err)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "false", cmdErr.Cmd)

	_, err = execute("")
	require.Error(t, err)
}
