package options

import (
	"fmt"
	"strconv"
	"strings"
)

/**
 * Parse a host identifier of the form "id/total", e.g. "2/5".
 * @param s the string to parse
 * @return the 1-based host id, the total number of hosts and error if any
 */
func ParseHost(s string) (int, int, error) {
	idPart, totalPart, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("bad --host %q (expected id/total)", s)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, 0, fmt.Errorf("bad --host id %q: %w", idPart, err)
	}
	total, err := strconv.Atoi(totalPart)
	if err != nil {
		return 0, 0, fmt.Errorf("bad --host total %q: %w", totalPart, err)
	}
	if total < 1 || id < 1 || id > total {
		return 0, 0, fmt.Errorf("bad --host %q (1 <= id <= total)", s)
	}
	return id, total, nil
}
