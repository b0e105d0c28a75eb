package importer

import "fmt"

// State is the phase an import transaction is in.
type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateBackingUp  State = "BACKING_UP"
	StateClearing   State = "CLEARING"
	StateExtracting State = "EXTRACTING"
	StateCommitted  State = "COMMITTED"
	StateRolledBack State = "ROLLED_BACK"
)

// IsTerminal reports whether s ends a transaction.
func IsTerminal(s State) bool {
	switch s {
	case StateCommitted, StateRolledBack:
		return true
	default:
		return false
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateValidating
	case StateValidating:
		return to == StateBackingUp || to == StateIdle
	case StateBackingUp:
		return to == StateClearing || to == StateRolledBack
	case StateClearing:
		return to == StateExtracting || to == StateRolledBack
	case StateExtracting:
		return to == StateCommitted || to == StateRolledBack
	default:
		return false
	}
}

// transition moves *cur from the expected state to the next one.
func transition(cur *State, from, to State) error {
	if *cur != from {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, *cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	*cur = to
	return nil
}
