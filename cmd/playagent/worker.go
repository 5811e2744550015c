//go:build linux

package main

import (
	"errors"

	"github.com/dshulyak/playground/agent"
	"github.com/dshulyak/playground/core"
	"github.com/dshulyak/playground/supervisor"
)

/**
 * Deploys the staged plan, supervises its commands until interrupted or
 * failed, then stops everything and reverses the kernel configuration.
 * @param data the staged configuration and plan
 * @param interrupt closed when the controller requests a stop
 * @return the joined failures, nil on a clean run.
 */
func work(data *agent.Data, interrupt <-chan struct{}) error {
	errs := make(chan error, 1024)
	running := map[int]*supervisor.Execution{}
	var failures []error

	if err := core.Deploy(data.Config, data.Plan); err != nil {
		failures = append(failures, err)
	} else {
		if err := supervisor.Launch(data.Plan.Commands, running, errs); err != nil {
			failures = append(failures, err)
		} else {
			select {
			case <-interrupt:
			case err := <-errs:
				if err != nil {
					failures = append(failures, err)
				}
			}
		}
		supervisor.Stop(running)
	}
	core.Teardown(data.Config, data.Plan)
	return errors.Join(failures...)
}
