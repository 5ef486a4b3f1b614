package status

import "fmt"

// routable lists the phases a human can explicitly route an item to from any
// non-terminal phase. Forward-only edges (PR Review, Final Review, Done) are
// excluded: those are driven by artifact creation and merges, never by
// routing.
var routable = []Status{
	StatusBacklog,
	StatusProductDevelopment,
	StatusProductDesign,
	StatusBugInvestigation,
	StatusTechnicalDesign,
	StatusImplementation,
}

// allowedTransitions defines the permitted phase changes. Every non-terminal
// phase may be re-routed to any routable phase; the review/completion edges
// are appended per phase. Done admits nothing.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusBacklog:            transitionSet(),
	StatusProductDevelopment: transitionSet(),
	StatusProductDesign:      transitionSet(),
	StatusBugInvestigation:   transitionSet(),
	StatusTechnicalDesign:    transitionSet(),
	StatusImplementation:     transitionSet(StatusPRReview),
	StatusPRReview:           transitionSet(StatusFinalReview, StatusDone),
	StatusFinalReview:        transitionSet(StatusDone),
	StatusDone:               {},
}

func transitionSet(extra ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(routable)+len(extra))
	for _, s := range routable {
		set[s] = struct{}{}
	}
	for _, s := range extra {
		set[s] = struct{}{}
	}
	return set
}

// IsLegalTransition reports whether the lifecycle allows the requested change.
// A same-phase transition is always legal: re-running a route or advance with
// the current target is a no-op, not an error.
func IsLegalTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// ValidateTransition returns an error when a phase change is not allowed.
func ValidateTransition(from, to Status) error {
	if !IsLegalTransition(from, to) {
		return fmt.Errorf("invalid transition from %q to %q", from, to)
	}
	return nil
}
