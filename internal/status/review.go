package status

// ReviewStatus is the fine-grained review sub-state layered on a phase.
// The empty value means no review state is set. Its meaning is
// phase-dependent: Approved during Technical Design means "ready to advance",
// while Approved during PR Review carries no auto-advance meaning (merges own
// that edge).
type ReviewStatus string

// Review sub-state constants.
const (
	ReviewNone                  ReviewStatus = ""
	ReviewWaitingForReview      ReviewStatus = "Waiting for Review"
	ReviewApproved              ReviewStatus = "Approved"
	ReviewRequestChanges        ReviewStatus = "Request Changes"
	ReviewRejected              ReviewStatus = "Rejected"
	ReviewWaitingClarification  ReviewStatus = "Waiting for Clarification"
	ReviewClarificationReceived ReviewStatus = "Clarification Received"
	ReviewWaitingDecision       ReviewStatus = "Waiting for Decision"
	ReviewDecisionSubmitted     ReviewStatus = "Decision Submitted"
)

// IsValid checks if the review status value is known. The empty value is
// valid (no review state).
func (r ReviewStatus) IsValid() bool {
	switch r {
	case ReviewNone, ReviewWaitingForReview, ReviewApproved,
		ReviewRequestChanges, ReviewRejected, ReviewWaitingClarification,
		ReviewClarificationReceived, ReviewWaitingDecision,
		ReviewDecisionSubmitted:
		return true
	}
	return false
}

type reviewOp int

const (
	reviewKeep reviewOp = iota
	reviewClear
	reviewSet
)

// ReviewChange is a tri-state mutation of the review sub-state: leave it
// untouched, clear it, or set it to a value. The zero value keeps the field
// untouched, so forgetting to specify a change can never clobber state.
type ReviewChange struct {
	op    reviewOp
	value ReviewStatus
}

// KeepReview leaves the review status untouched.
func KeepReview() ReviewChange { return ReviewChange{op: reviewKeep} }

// ClearReview clears the review status.
func ClearReview() ReviewChange { return ReviewChange{op: reviewClear} }

// SetReview sets the review status to the given value.
func SetReview(v ReviewStatus) ReviewChange { return ReviewChange{op: reviewSet, value: v} }

// IsKeep reports whether the change leaves the field untouched.
func (c ReviewChange) IsKeep() bool { return c.op == reviewKeep }

// IsClear reports whether the change clears the field.
func (c ReviewChange) IsClear() bool { return c.op == reviewClear }

// Value returns the value to set and whether one was supplied.
func (c ReviewChange) Value() (ReviewStatus, bool) {
	if c.op != reviewSet {
		return ReviewNone, false
	}
	return c.value, true
}

// Apply returns the review status that results from applying the change to
// the current value.
func (c ReviewChange) Apply(current ReviewStatus) ReviewStatus {
	switch c.op {
	case reviewClear:
		return ReviewNone
	case reviewSet:
		return c.value
	default:
		return current
	}
}
