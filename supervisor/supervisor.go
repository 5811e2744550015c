package supervisor

import (
	"fmt"
	"sort"
	"strings"
)

/**
 * Everything needed to launch one command instance inside its namespace.
 */
type CommandConfig struct {
	// Namespace the command runs in; also the tag on its output lines.
	Name string `json:"name"`
	// Command string; occurrences of {index} are substituted with the
	// instance index before spawn.
	Command string `json:"command"`
	// Working directory of the child.
	WorkDir string `json:"work_dir"`
	// Environment overrides applied on top of the inherited environment.
	Env map[string]string `json:"os_env,omitempty"`
	// Redirect stdout/stderr to files in the working directory instead
	// of piping them through reader goroutines.
	Redirect bool `json:"redirect"`
}

/**
 * Builds the final invocation for the given instance index: the command
 * with {index} substituted, wrapped in `ip netns exec <namespace>`.
 * @param index the instance index
 * @return the argv of the invocation, or error on an empty command.
 */
func (c CommandConfig) Invocation(index int) ([]string, error) {
	cmd := strings.ReplaceAll(c.Command, "{index}", fmt.Sprintf("%d", index))
	cmd = fmt.Sprintf("ip netns exec %s %s", c.Name, cmd)
	argv := strings.Fields(cmd)
	// "ip netns exec <name>" contributes four fields; four or fewer
	// means the command string was blank.
	if len(argv) <= 4 {
		return nil, fmt.Errorf("no command found in the command string: %q", c.Command)
	}
	return argv, nil
}

/**
 * Fans the flat command/workdir slices into per-host command maps keyed
 * by global instance index. chunks carries the per-host instance counts
 * in host order; commands and workDirs are indexed by global index.
 * @param prefix the playground prefix
 * @param redirect whether children redirect output to files
 * @param chunks per-host instance counts
 * @param commands one command string per instance
 * @param workDirs one working directory per instance
 * @param env environment overrides shared by all instances
 * @return one command map per host, or error if any.
 */
func Generate(prefix string, redirect bool, chunks []int, commands []string, workDirs []string, env map[string]string) ([]map[int]CommandConfig, error) {
	hosts := make([]map[int]CommandConfig, 0, len(chunks))
	start := 0
	for _, chunk := range chunks {
		conf := make(map[int]CommandConfig, chunk)
		for index := start; index < start+chunk; index++ {
			if index >= len(commands) {
				return nil, fmt.Errorf("command is not provided for instance %d", index)
			}
			if index >= len(workDirs) {
				return nil, fmt.Errorf("workdir is not provided for instance %d", index)
			}
			conf[index] = CommandConfig{
				Name:     namespaceName(prefix, index),
				Command:  commands[index],
				WorkDir:  workDirs[index],
				Env:      env,
				Redirect: redirect,
			}
		}
		hosts = append(hosts, conf)
		start += chunk
	}
	return hosts, nil
}

func namespaceName(prefix string, index int) string {
	return fmt.Sprintf("%s-%d", prefix, index)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
