package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the trigger is not permitted in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every guarded transition for a trigger refused
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrTerminalState is returned when a trigger is fired on a closed workflow
	ErrTerminalState = errors.New("state is terminal")
)
