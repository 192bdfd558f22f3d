// Package types provides type-safe constants shared by the updater packages.
//
// This package centralizes the enumerated values used throughout the codebase
// (orchestrator states, run modes, control script verbs) so that history
// records, metrics labels and log fields all agree on spelling.
package types

import (
	"fmt"
	"strings"
)

// State is a step of the update state machine.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateUpToDate    State = "up_to_date"
	StateNeedsUpdate State = "needs_update"
	StateRotating    State = "rotating"
	StateDownloading State = "downloading"
	StateExtracting  State = "extracting"
	StatePatching    State = "patching"
	StateCommitted   State = "committed"
	StateRollingBack State = "rolling_back"
	StateRolledBack  State = "rolled_back"
)

// AllStates returns every state in pipeline order.
func AllStates() []State {
	return []State{
		StateIdle, StateChecking, StateUpToDate, StateNeedsUpdate,
		StateRotating, StateDownloading, StateExtracting, StatePatching,
		StateCommitted, StateRollingBack, StateRolledBack,
	}
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:        {StateChecking},
	StateChecking:    {StateUpToDate, StateNeedsUpdate},
	StateNeedsUpdate: {StateRotating},
	StateRotating:    {StateDownloading, StateRollingBack},
	StateDownloading: {StateExtracting, StateRollingBack},
	StateExtracting:  {StatePatching, StateRollingBack},
	StatePatching:    {StateCommitted, StateRollingBack},
	StateRollingBack: {StateRolledBack},
}

// Validate checks if the State is a valid value.
func (s State) Validate() error {
	for _, known := range AllStates() {
		if s == known {
			return nil
		}
	}
	if s == "" {
		return fmt.Errorf("state is required")
	}
	return fmt.Errorf("invalid state '%s'", s)
}

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// CanTransition reports whether next is a legal successor of s.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states that end an invocation.
func (s State) IsTerminal() bool {
	switch s {
	case StateIdle, StateUpToDate, StateCommitted, StateRolledBack:
		return true
	}
	return false
}

// IsTransactional returns true for states in which the live installation
// has been rotated away and must end in commit or rollback.
func (s State) IsTransactional() bool {
	switch s {
	case StateRotating, StateDownloading, StateExtracting, StatePatching, StateRollingBack:
		return true
	}
	return false
}

// Mode represents which orchestration entry point produced a run.
type Mode string

const (
	// ModeManual is the operator-driven update (no service stop/start).
	ModeManual Mode = "manual"
	// ModeAuto is the unattended update with service handling and world backup.
	ModeAuto Mode = "auto"
)

// AllModes returns all valid modes.
func AllModes() []Mode {
	return []Mode{ModeManual, ModeAuto}
}

// Validate checks if the Mode is a valid value.
func (m Mode) Validate() error {
	switch m {
	case ModeManual, ModeAuto:
		return nil
	case "":
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("invalid mode '%s' (must be manual or auto)", m)
	}
}

// String returns the string representation of the Mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(s))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Verb is the single positional argument passed to the server control script.
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbCommand Verb = "command"
)

// Validate checks if the Verb is a valid value.
func (v Verb) Validate() error {
	switch v {
	case VerbStart, VerbStop, VerbCommand:
		return nil
	case "":
		return fmt.Errorf("verb is required")
	default:
		return fmt.Errorf("invalid verb '%s' (must be start, stop, or command)", v)
	}
}

// String returns the string representation of the Verb.
func (v Verb) String() string {
	return string(v)
}
