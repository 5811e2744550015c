package options

import (
	"fmt"
	"strings"
)

/**
 * Parse an environment variable specification string.
 * @param kv the environment variable specification (KEY=VALUE)
 * @return the key, the value and error if any
 */
func ParseEnv(kv string) (string, string, error) {
	k, v, ok := strings.Cut(kv, "=")

	if !ok || k == "" {
		return "", "", fmt.Errorf("bad --env %q (KEY=VALUE)", kv)
	}
	return k, v, nil
}

/**
 * Parse a list of KEY=VALUE specifications into a map.
 * @param kvs the specifications
 * @return the environment map and error if any
 */
func ParseEnvList(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, err := ParseEnv(kv)
		if err != nil {
			return nil, err
		}
		env[k] = v
	}
	return env, nil
}
