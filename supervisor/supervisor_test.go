package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocation(t *testing.T) {
	cfg := CommandConfig{Name: "p-ab-2", Command: "echo {index}"}
	argv, err := cfg.Invocation(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip", "netns", "exec", "p-ab-2", "echo", "2"}, argv)

	cfg = CommandConfig{Name: "p-ab-0", Command: "server --listen 0.0.0.0:{index} --peers 3"}
	argv, err = cfg.Invocation(0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ip", "netns", "exec", "p-ab-0",
		"server", "--listen", "0.0.0.0:0", "--peers", "3",
	}, argv)

	cfg = CommandConfig{Name: "p-ab-1", Command: "   "}
	_, err = cfg.Invocation(1)
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	commands := []string{"echo a", "echo b", "echo c", "echo d", "echo e"}
	workDirs := []string{"/tmp", "/tmp", "/tmp", "/var", "/var"}
	env := map[string]string{"KEY": "value"}

	hosts, err := Generate("p-ab", false, []int{3, 2}, commands, workDirs, env)
	require.NoError(t, err)
	require.Len(t, hosts, 2)

	require.Len(t, hosts[0], 3)
	require.Len(t, hosts[1], 2)

	// Indices are global: the second host continues where the first ended.
	assert.Contains(t, hosts[0], 0)
	assert.Contains(t, hosts[0], 2)
	assert.Contains(t, hosts[1], 3)
	assert.Contains(t, hosts[1], 4)

	assert.Equal(t, "p-ab-0", hosts[0][0].Name)
	assert.Equal(t, "p-ab-4", hosts[1][4].Name)
	assert.Equal(t, "echo d", hosts[1][3].Command)
	assert.Equal(t, "/var", hosts[1][3].WorkDir)
	assert.Equal(t, env, hosts[0][1].Env)
}

func TestGenerateMissingInputs(t *testing.T) {
	_, err := Generate("p-ab", false, []int{2}, []string{"echo a"}, []string{"/tmp", "/tmp"}, nil)
	require.Error(t, err)

	_, err = Generate("p-ab", false, []int{2}, []string{"echo a", "echo b"}, []string{"/tmp"}, nil)
	require.Error(t, err)
}
