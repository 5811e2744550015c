package options

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshulyak/playground/network"
)

func TestFanoutCounts(t *testing.T) {
	// No counts: one instance per command.
	fanout, err := NewFanout([]string{"echo a", "echo b"}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, fanout.Total)
	assert.Equal(t, []string{"echo a", "echo b"}, fanout.Commands)

	// A single count applies to every command.
	fanout, err = NewFanout([]string{"echo a", "echo b"}, []int{3}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, fanout.Total)
	assert.Equal(t, []string{"echo a", "echo a", "echo a", "echo b", "echo b", "echo b"}, fanout.Commands)

	// Otherwise counts must match the commands.
	fanout, err = NewFanout([]string{"echo a", "echo b"}, []int{1, 2}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, fanout.Total)
	assert.Equal(t, []string{"echo a", "echo b", "echo b"}, fanout.Commands)

	_, err = NewFanout([]string{"echo a", "echo b", "echo c"}, []int{1, 2}, nil, nil, nil)
	require.Error(t, err)

	_, err = NewFanout(nil, nil, nil, nil, nil)
	require.Error(t, err)

	_, err = NewFanout([]string{"echo a"}, []int{0}, nil, nil, nil)
	require.Error(t, err)
}

func TestFanoutQdisc(t *testing.T) {
	// Without tbf or netem there is no qdisc stream at all.
	fanout, err := NewFanout([]string{"echo a"}, []int{3}, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, fanout.Qdisc)

	// Values are taken by instance index, falling back to the first.
	fanout, err = NewFanout([]string{"echo a"}, []int{3},
		[]string{"rate 1mbit", "rate 2mbit"}, []string{"delay 5ms"}, nil)
	require.NoError(t, err)
	require.Len(t, fanout.Qdisc, 3)
	assert.Equal(t, network.Qdisc{Tbf: "rate 1mbit", Netem: "delay 5ms"}, fanout.Qdisc[0])
	assert.Equal(t, network.Qdisc{Tbf: "rate 2mbit", Netem: "delay 5ms"}, fanout.Qdisc[1])
	assert.Equal(t, network.Qdisc{Tbf: "rate 1mbit", Netem: "delay 5ms"}, fanout.Qdisc[2])
}

func TestFanoutWorkDirs(t *testing.T) {
	currentDir, err := os.Getwd()
	require.NoError(t, err)

	fanout, err := NewFanout([]string{"echo a"}, []int{2}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{currentDir, currentDir}, fanout.WorkDirs)

	fanout, err = NewFanout([]string{"echo a"}, []int{3}, nil, nil, []string{"/tmp", "/var"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp", "/var", "/tmp"}, fanout.WorkDirs)
}

func TestParseEnv(t *testing.T) {
	key, value, err := ParseEnv("KEY=VALUE")
	require.NoError(t, err)
	assert.Equal(t, "KEY", key)
	assert.Equal(t, "VALUE", value)

	// Values may contain '='.
	_, value, err = ParseEnv("KEY=a=b")
	require.NoError(t, err)
	assert.Equal(t, "a=b", value)

	_, _, err = ParseEnv("KEY")
	require.Error(t, err)
	_, _, err = ParseEnv("=VALUE")
	require.Error(t, err)

	env, err := ParseEnvList([]string{"A=1", "B=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, env)

	env, err = ParseEnvList(nil)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestParseHost(t *testing.T) {
	id, total, err := ParseHost("1/1")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 1, total)

	id, total, err = ParseHost("2/5")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, 5, total)

	for _, input := range []string{"", "1", "0/1", "3/2", "a/b", "1/"} {
		_, _, err := ParseHost(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestParseLogging(t *testing.T) {
	_, err := ParseLogLevel("info")
	require.NoError(t, err)
	_, err = ParseLogLevel("verbose")
	require.Error(t, err)

	_, err = ParseLogFormat("json")
	require.NoError(t, err)
	_, err = ParseLogFormat("yaml")
	require.Error(t, err)
}
