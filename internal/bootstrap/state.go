package bootstrap

import "fmt"

// State is the lifecycle position of one descriptor within a run.
type State string

const (
	StatePending   State = "PENDING"
	StateFetching  State = "FETCHING"
	StateVerifying State = "VERIFYING"
	StateExpanding State = "EXPANDING"
	StateExposing  State = "EXPOSING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var nextState = map[State]State{
	StatePending:   StateFetching,
	StateFetching:  StateVerifying,
	StateVerifying: StateExpanding,
	StateExpanding: StateExposing,
	StateExposing:  StateDone,
}

func isAllowedTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return nextState[from] == to
}

// tracker holds the state of one task. It is owned by a single worker.
type tracker struct {
	state State
}

func newTracker() *tracker {
	return &tracker{state: StatePending}
}

// advance moves to the next state, refusing anything out of order.
func (t *tracker) advance(to State) error {
	if !isAllowedTransition(t.state, to) {
		return fmt.Errorf("disallowed transition %s -> %s", t.state, to)
	}
	t.state = to
	return nil
}
