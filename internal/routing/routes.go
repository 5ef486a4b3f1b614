// Package routing maps abstract destination names to concrete pipeline
// phases, per item kind, and defines the linear auto-advance chain.
package routing

import (
	"errors"
	"fmt"

	"github.com/conveyorhq/conveyor/internal/status"
)

// ErrUnknownDestination is returned when a destination name has no mapping
// for the requested item kind.
var ErrUnknownDestination = errors.New("unknown routing destination")

// Destination names accepted by the routing surface. These are the stable
// identifiers the front-ends send; the concrete phase strings they map to are
// a board-side detail.
const (
	DestBacklog        = "backlog"
	DestProductDev     = "product-dev"
	DestProductDesign  = "product-design"
	DestInvestigation  = "investigation"
	DestTechDesign     = "tech-design"
	DestImplementation = "implementation"
)

// featureDestinations is the full destination set. It is a superset of the
// bug set, so reverse lookups scan it first.
var featureDestinations = map[string]status.Status{
	DestBacklog:        status.StatusBacklog,
	DestProductDev:     status.StatusProductDevelopment,
	DestProductDesign:  status.StatusProductDesign,
	DestTechDesign:     status.StatusTechnicalDesign,
	DestImplementation: status.StatusImplementation,
}

// bugDestinations excludes the product phases: bugs go through investigation
// instead.
var bugDestinations = map[string]status.Status{
	DestBacklog:        status.StatusBacklog,
	DestInvestigation:  status.StatusBugInvestigation,
	DestTechDesign:     status.StatusTechnicalDesign,
	DestImplementation: status.StatusImplementation,
}

// DestinationStatus resolves a destination name to a concrete phase for the
// given item kind.
func DestinationStatus(kind status.ItemKind, destination string) (status.Status, error) {
	table := featureDestinations
	if kind == status.KindBug {
		table = bugDestinations
	}
	st, ok := table[destination]
	if !ok {
		return "", fmt.Errorf("%w: %q for kind %q", ErrUnknownDestination, destination, kind)
	}
	return st, nil
}

// Destinations returns the destination names legal for the given kind, in a
// stable order (for prompts and error messages).
func Destinations(kind status.ItemKind) []string {
	if kind == status.KindBug {
		return []string{DestBacklog, DestInvestigation, DestTechDesign, DestImplementation}
	}
	return []string{DestBacklog, DestProductDev, DestProductDesign, DestTechDesign, DestImplementation}
}

// StatusToDestination reverse-maps a concrete phase to its destination name.
// Returns false for phases that are not explicit routing targets (PR Review,
// Final Review, Done); those edges belong to merges and advances.
func StatusToDestination(st status.Status) (string, bool) {
	for name, mapped := range featureDestinations {
		if mapped == st {
			return name, true
		}
	}
	// Investigation only appears in the bug table.
	if st == status.StatusBugInvestigation {
		return DestInvestigation, true
	}
	return "", false
}

// statusTransitions is the strictly linear chain used only by the
// approved-item auto-advance path. It is deliberately distinct from the
// destination tables: routing is an explicit human choice, auto-advance has
// no backward or skip-ahead option. Implementation→PR Review is driven by
// artifact creation and PR Review→Done by merges, so neither edge appears
// here.
var statusTransitions = map[status.Status]status.Status{
	status.StatusProductDevelopment: status.StatusProductDesign,
	status.StatusProductDesign:      status.StatusTechnicalDesign,
	status.StatusBugInvestigation:   status.StatusTechnicalDesign,
	status.StatusTechnicalDesign:    status.StatusImplementation,
}

// NextStatus returns the auto-advance successor of a phase, if one exists.
func NextStatus(st status.Status) (status.Status, bool) {
	next, ok := statusTransitions[st]
	return next, ok
}
