package scheduler

import "fmt"

// State is the evaluation state of a single project within one run.
type State string

// Projects move Pending -> InProgress -> Done. A project whose evaluator
// fails stays InProgress and the scheduler halts.
const (
	StatePending    State = "PENDING"
	StateInProgress State = "IN_PROGRESS"
	StateDone       State = "DONE"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	return s == StateDone
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateInProgress
	case StateInProgress:
		return to == StateDone
	default:
		return false
	}
}

// transition moves name from one state to another, rejecting anything that
// is not a forward step.
func (s *Scheduler) transition(name string, from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.stateLocked(name)
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	s.states[name] = to
	return nil
}

func (s *Scheduler) stateLocked(name string) State {
	if st, ok := s.states[name]; ok {
		return st
	}
	return StatePending
}
