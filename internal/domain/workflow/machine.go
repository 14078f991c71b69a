package workflow

import "context"

// StateMachine tracks the current state of one workflow and validates transitions.
type StateMachine interface {
	State() State

	// CanFire reports whether the trigger has any transition from the current
	// state. Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire runs the first transition whose guard passes.
	Fire(ctx context.Context, trigger Trigger) error

	PermittedTriggers() []Trigger
}
