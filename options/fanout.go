package options

import (
	"fmt"
	"os"

	"github.com/dshulyak/playground/network"
)

/**
 * The per-instance inputs derived from the repeatable CLI flags: one
 * command, working directory and optional qdisc per instance index.
 */
type Fanout struct {
	Total    int
	Commands []string
	WorkDirs []string
	Qdisc    []network.Qdisc
}

/**
 * Expands the repeatable flags into per-instance slices.
 *
 * Counts broadcast: empty means one instance per command, a single value
 * applies to every command, otherwise the list must match the commands.
 * Commands are flat-repeated by their count. tbf/netem/work-dir values
 * are taken by instance index when present, falling back to the first
 * value if any was supplied; work dirs fall back further to the current
 * working directory.
 *
 * @param commands the --command values
 * @param counts the --count values
 * @param tbf the --tbf values
 * @param netem the --netem values
 * @param workDirs the --work-dir values
 * @return the per-instance fanout and error if any
 */
func NewFanout(commands []string, counts []int, tbf, netem, workDirs []string) (*Fanout, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("requires atleast one command to run. use --command or -c to provide commands")
	}
	switch {
	case len(counts) == 0, len(counts) == 1, len(counts) == len(commands):
	default:
		return nil, fmt.Errorf("got %d counts for %d commands; provide one, one per command, or none", len(counts), len(commands))
	}

	countFor := func(i int) (int, error) {
		count := 1
		if len(counts) == 1 {
			count = counts[0]
		} else if i < len(counts) {
			count = counts[i]
		}
		if count < 1 {
			return 0, fmt.Errorf("counts must be positive, got %d", count)
		}
		return count, nil
	}

	fanout := &Fanout{}
	for i, cmd := range commands {
		count, err := countFor(i)
		if err != nil {
			return nil, err
		}
		for k := 0; k < count; k++ {
			fanout.Commands = append(fanout.Commands, cmd)
		}
		fanout.Total += count
	}

	currentDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	for index := 0; index < fanout.Total; index++ {
		fanout.WorkDirs = append(fanout.WorkDirs, byIndex(workDirs, index, currentDir))
		if len(tbf) > 0 || len(netem) > 0 {
			fanout.Qdisc = append(fanout.Qdisc, network.Qdisc{
				Tbf:   byIndex(tbf, index, ""),
				Netem: byIndex(netem, index, ""),
			})
		}
	}
	return fanout, nil
}

// Value at index, falling back to the first supplied value, then to def.
func byIndex(values []string, index int, def string) string {
	if index < len(values) {
		return values[index]
	}
	if len(values) > 0 {
		return values[0]
	}
	return def
}
