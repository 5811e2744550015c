//go:build linux

package partition

import (
	"log/slog"
	"time"

	"github.com/dshulyak/playground/kernel"
	"github.com/dshulyak/playground/network"
)

/**
 * The partition agent's unit of work: the schedule and the instance
 * veths, in plan order, plus the set of currently installed drops.
 */
type Task struct {
	partition Partition
	instances []network.NamespaceVeth
	enabled   map[[2]int]struct{}
	errs      chan<- error
}

/**
 * Creates a task over the given instances.
 * @param p the schedule
 * @param instances the veth list from the plan, ascending index order
 * @param errs the error bus apply failures are reported on; revert
 * failures are only logged
 */
func NewTask(p Partition, instances []network.NamespaceVeth, errs chan<- error) *Task {
	return &Task{
		partition: p,
		instances: instances,
		enabled:   map[[2]int]struct{}{},
		errs:      errs,
	}
}

/**
 * Installs DROP rules cutting traffic between every pair of distinct
 * buckets, remembering each installed pair. Installation is best-effort:
 * a failing rule is reported and the remaining rules are still applied.
 */
func (t *Task) Apply() {
	bounds := t.partition.Split(len(t.instances))
	for i, from := range bounds {
		for j, to := range bounds {
			if i == j {
				continue
			}
			for f := from[0]; f < from[1]; f++ {
				for s := to[0]; s < to[1]; s++ {
					if err := kernel.DropPacketsApply(t.instances[f], t.instances[s]); err != nil {
						t.report(err)
						continue
					}
					t.enabled[[2]int{f, s}] = struct{}{}
				}
			}
		}
	}
}

/**
 * Removes exactly the remembered rules. Failures are logged and the
 * remaining rules are still removed.
 */
func (t *Task) Revert() {
	for pair := range t.enabled {
		if err := kernel.DropPacketsRevert(t.instances[pair[0]], t.instances[pair[1]]); err != nil {
			slog.Error("failed to revert partition rule", "err", err)
		}
		delete(t.enabled, pair)
	}
}

func (t *Task) report(err error) {
	slog.Error("failed to apply partition rule", "err", err)
	if t.errs != nil {
		select {
		case t.errs <- err:
		default:
		}
	}
}

/**
 * The background partition agent: sleeps for the interval, applies the
 * partition, sleeps for the duration, reverts it, and repeats until
 * stopped. A stop signal interrupts either sleep; if rules are installed
 * when it arrives they are reverted before the agent exits.
 */
type Background struct {
	stop chan struct{}
	done chan struct{}
}

/**
 * Spawns the agent over the given task.
 */
func Spawn(task *Task) *Background {
	b := &Background{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go b.loop(task)
	return b
}

/**
 * Stops the agent and waits for it to finish reverting.
 */
func (b *Background) Stop() {
	close(b.stop)
	<-b.done
}

func (b *Background) loop(task *Task) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			slog.Debug("stopping partition task")
			return
		case <-time.After(task.partition.Interval):
		}
		task.Apply()
		select {
		case <-b.stop:
			slog.Debug("stopping partition task")
			task.Revert()
			return
		case <-time.After(task.partition.Duration):
		}
		task.Revert()
	}
}
