package auth

import "errors"

// State is the auth manager lifecycle state.
type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateAwaitingRedirect State = "awaiting_redirect"
	StateAuthenticated    State = "authenticated"
	StateRefreshing       State = "refreshing"
	StateRefreshFailed    State = "refresh_failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// RefreshFailed is terminal: recovery requires a new manager and a fresh
// authorization flow.
var ValidTransitions = map[State][]State{
	StateUnauthenticated:  {StateAwaitingRedirect, StateAuthenticated},
	StateAwaitingRedirect: {StateAuthenticated, StateUnauthenticated},
	StateAuthenticated:    {StateRefreshing},
	StateRefreshing:       {StateAuthenticated, StateRefreshFailed},
	StateRefreshFailed:    {},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}
