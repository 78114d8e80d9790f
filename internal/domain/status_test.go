package domain

import "testing"

func TestCanTransitionTable(t *testing.T) {
	all := []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}
	legal := map[Status][]Status{
		StatusOpen:       {StatusInProgress, StatusClosed},
		StatusInProgress: {StatusResolved, StatusClosed},
		StatusResolved:   {StatusClosed, StatusInProgress},
		StatusClosed:     {},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, candidate := range legal[from] {
				if candidate == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	for _, to := range []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed} {
		if CanTransition(StatusClosed, to) {
			t.Errorf("CanTransition(closed, %s) = true, want false", to)
		}
	}
}

func TestUnknownStatusHasNoTransitions(t *testing.T) {
	if CanTransition("archived", StatusOpen) {
		t.Fatal("unknown current status must have no legal transitions")
	}
	if CanTransition(StatusOpen, "archived") {
		t.Fatal("unknown target status must not be reachable")
	}
}

func TestKnownStatus(t *testing.T) {
	for _, s := range []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed} {
		if !KnownStatus(s) {
			t.Errorf("KnownStatus(%s) = false", s)
		}
	}
	if KnownStatus(StatusUnknown) {
		t.Error("KnownStatus(unknown) = true")
	}
	if KnownStatus("archived") {
		t.Error("KnownStatus(archived) = true")
	}
}
