// Package status defines the work item lifecycle: pipeline phases, review
// sub-states, and the transition guards between them.
package status

import "fmt"

// Status is the coarse pipeline phase of a work item.
type Status string

// Pipeline phase constants, in pipeline order.
const (
	StatusBacklog            Status = "Backlog"
	StatusProductDevelopment Status = "Product Development"
	StatusProductDesign      Status = "Product Design"
	StatusBugInvestigation   Status = "Bug Investigation" // bug-only alternative to Product Design
	StatusTechnicalDesign    Status = "Technical Design"
	StatusImplementation     Status = "Implementation"
	StatusPRReview           Status = "PR Review"
	StatusFinalReview        Status = "Final Review" // multi-phase items only
	StatusDone               Status = "Done"
)

// IsValid checks if the status value is a known phase.
func (s Status) IsValid() bool {
	switch s {
	case StatusBacklog, StatusProductDevelopment, StatusProductDesign,
		StatusBugInvestigation, StatusTechnicalDesign, StatusImplementation,
		StatusPRReview, StatusFinalReview, StatusDone:
		return true
	}
	return false
}

// IsTerminal reports whether the phase admits no further forward transition.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// ParseStatus converts a raw status string (as stored on the external board)
// into a Status. This is the one place raw strings enter the type system.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// ItemKind categorizes the originating record of a work item.
type ItemKind string

// Item kind constants.
const (
	KindFeature ItemKind = "feature"
	KindBug     ItemKind = "bug"
)

// IsValid checks if the item kind value is valid.
func (k ItemKind) IsValid() bool {
	return k == KindFeature || k == KindBug
}
