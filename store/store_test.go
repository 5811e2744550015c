package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshulyak/playground/core"
	"github.com/dshulyak/playground/network"
)

func testPlans(t *testing.T) []*core.Plan {
	t.Helper()
	pool, err := network.NewPool("10.9.0.0/16")
	require.NoError(t, err)
	plans, err := core.Generate(core.Config{
		Prefix:     "p-st",
		CIDR:       "10.9.0.0/16",
		PerBridge:  2,
		VxlanID:    100,
		VxlanPort:  4789,
		VxlanGroup: "239.1.1.1",
	}, 5, []core.Host{{Name: "a", VxlanDevice: "eth0"}, {Name: "b", VxlanDevice: "eth1"}}, pool, nil)
	require.NoError(t, err)
	return plans
}

func TestSaveLoadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	plans := testPlans(t)

	require.NoError(t, Save(path, "p-st", plans))

	loaded, err := Load(path, "p-st")
	require.NoError(t, err)
	assert.Equal(t, plans, loaded)

	// Unknown prefixes load as nothing.
	missing, err := Load(path, "p-xx")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, Delete(path, "p-st"))
	gone, err := Load(path, "p-st")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting an absent record is not an error.
	require.NoError(t, Delete(path, "p-st"))
}

func TestLoadEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	plans, err := Load(path, "p-st")
	require.NoError(t, err)
	assert.Nil(t, plans)
}
