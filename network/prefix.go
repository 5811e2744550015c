package network

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Upper bound on the expanded prefix. Kernel object names are derived from
// it (e.g. "v-<prefix>-<index>-br") and interface names are limited to 15
// characters; with a long prefix and large instance indices the derived
// names can still exceed that limit.
const maxPrefixLen = 8

const base62 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

/**
 * Expands a prefix template by substituting every literal 'X' with a
 * random base62 character. The expanded prefix names every kernel object
 * the playground creates, which is what makes cleanup-by-prefix safe.
 * @param template the user-supplied prefix, e.g. "p-XXX"
 * @return the expanded prefix and error if any
 */
func ExpandPrefix(template string) (string, error) {
	var b strings.Builder
	for _, c := range template {
		if c == 'X' {
			b.WriteByte(base62[randIndex(len(base62))])
		} else {
			b.WriteRune(c)
		}
	}
	expanded := b.String()
	if len(expanded) == 0 {
		return "", fmt.Errorf("prefix must not be empty")
	}
	if len(expanded) > maxPrefixLen {
		return "", fmt.Errorf("prefix %q is longer than %d characters", expanded, maxPrefixLen)
	}
	return expanded, nil
}

func randIndex(n int) int {
	var buf [1]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on any supported platform
		panic(err)
	}
	return int(buf[0]) % n
}
