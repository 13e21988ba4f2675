// SPDX-License-Identifier: MPL-2.0

package serverbase

const (
	// StateCreated: constructed, Start not yet called.
	StateCreated State = iota
	// StateStarting: Start called, listener not yet serving.
	StateStarting
	// StateRunning: the accept loop is admitting connections.
	StateRunning
	// StateStopping: termination requested, workers are draining.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: start or serve returned a fatal error.
	StateFailed
)

// State represents the lifecycle state of a service.
type State int32

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the state is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}
