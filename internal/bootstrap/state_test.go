package bootstrap

import (
	"reflect"
	"testing"
)

func TestTrackerHappyPath(t *testing.T) {
	tr := newTracker()
	for _, s := range []State{StateFetching, StateVerifying, StateExpanding, StateExposing, StateDone} {
		if err := tr.advance(s); err != nil {
			t.Fatalf("advance(%s): %v", s, err)
		}
	}
	if !tr.state.IsTerminal() {
		t.Fatal("DONE not terminal")
	}
	if err := tr.advance(StateFailed); err == nil {
		t.Fatal("left terminal state")
	}
}

func TestTrackerRejectsSkips(t *testing.T) {
	tr := newTracker()
	if err := tr.advance(StateExpanding); err == nil {
		t.Fatal("PENDING -> EXPANDING allowed")
	}
	if tr.state != StatePending {
		t.Fatalf("state changed on rejected transition: %s", tr.state)
	}
}

func TestFailedReachableFromEveryActiveState(t *testing.T) {
	for _, s := range []State{StatePending, StateFetching, StateVerifying, StateExpanding, StateExposing} {
		if !isAllowedTransition(s, StateFailed) {
			t.Errorf("%s -> FAILED disallowed", s)
		}
	}
}

func TestDescriptorRulesSorted(t *testing.T) {
	d := Descriptor{Exposures: map[string]string{"zeta": "z", "alpha": "a", "mid": "m"}}
	var names []string
	for _, r := range d.Rules() {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("names = %v", names)
	}
}

func TestDefaultWorkersBounded(t *testing.T) {
	if n := DefaultWorkers(); n < 5 || n > maxDefaultWorkers {
		t.Fatalf("DefaultWorkers() = %d", n)
	}
}
