package artifact

import (
	"strings"

	"podium/internal/services"
)

// State represents the lifecycle of one derived artifact slot.
type State string

const (
	StateNone       State = "none"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

var allStates = []State{StateNone, StateProcessing, StateComplete, StateError}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Kind distinguishes the artifact families that share the state machine.
type Kind string

const (
	KindAudio    Kind = "audio"
	KindPartBook Kind = "part_book"
)

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automatic transition occurs.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// CanTrigger validates a trigger against the current state. A fresh trigger is
// permitted from none and, as an explicit retry, from error. Triggering while
// processing or after completion is rejected so the same work is never
// rendered twice; regeneration of completed work goes through revisioning
// instead of reusing the slot.
func (s State) CanTrigger() error {
	switch s {
	case StateNone, StateError:
		return nil
	case StateProcessing:
		return services.ErrAlreadyInProgress
	case StateComplete:
		return services.ErrAlreadyComplete
	default:
		return services.Wrap(services.ErrValidation, "artifact", "trigger", "unknown state "+string(s), nil)
	}
}

// Observation is the result of observing a job: the current state plus the
// result key once complete or the recorded error once failed.
type Observation struct {
	State        State
	ResultKey    string
	ErrorMessage string
}

// Terminal reports whether the observation ends polling.
func (o Observation) Terminal() bool {
	return o.State.IsTerminal()
}
