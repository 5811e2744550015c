package agent

import (
	"github.com/dshulyak/playground/core"
)

/**
 * Identity of an agent host, served on /host so a controller can match
 * plans to carrier devices.
 */
type HostInfo struct {
	Hostname    string `json:"hostname"`
	VxlanDevice string `json:"vxlan_device"`
}

/**
 * The state a controller stages on an agent before triggering a run:
 * the playground configuration and this host's plan (network objects
 * plus the commands to supervise).
 */
type Data struct {
	Config core.Config `json:"config"`
	Plan   *core.Plan  `json:"plan"`
}

/**
 * Lifecycle of the agent's worker.
 */
type WorkerStatus string

const (
	// No plan running; a new plan may be staged.
	StatusPending WorkerStatus = "pending"
	// The plan is deployed and its commands are supervised.
	StatusRunning WorkerStatus = "running"
	// A stop was requested and cleanup is in flight.
	StatusStopping WorkerStatus = "stopping"
	// The worker finished; its result is ready to collect.
	StatusStopped WorkerStatus = "stopped"
	// The worker finished with a failure.
	StatusFailed WorkerStatus = "failed"
)

/**
 * Status response returned by /worker endpoints.
 */
type StatusResponse struct {
	Status WorkerStatus `json:"status"`
	// Identifier of the current or last run.
	RunID string `json:"run_id,omitempty"`
	// Failure description once the status is failed.
	Error string `json:"error,omitempty"`
}
