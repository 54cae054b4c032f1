package lifecycle

import "fmt"

// State is a phase of the orchestrator state machine.
type State int32

const (
	// StateIdle is the initial state; nothing has been discovered or connected.
	StateIdle State = iota
	// StateStarting runs discovery and connects every backend.
	StateStarting
	// StateRunning means every discovered backend connected.
	StateRunning
	// StateStopping closes backends and drains tracked work.
	StateStopping
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
