package board

import (
	"fmt"
	"strings"

	"github.com/conveyorhq/conveyor/internal/status"
)

// Scoped label prefixes owned by this gateway. Nothing outside this package
// may construct or parse them.
const (
	phaseLabelPrefix  = "phase"
	reviewLabelPrefix = "review"
	implLabelPrefix   = "impl"
)

// statusLabels maps phases to their label values. This is the single source
// of truth for the phase label vocabulary.
var statusLabels = map[status.Status]string{
	status.StatusBacklog:            "backlog",
	status.StatusProductDevelopment: "product-development",
	status.StatusProductDesign:      "product-design",
	status.StatusBugInvestigation:   "bug-investigation",
	status.StatusTechnicalDesign:    "technical-design",
	status.StatusImplementation:     "implementation",
	status.StatusPRReview:           "pr-review",
	status.StatusFinalReview:        "final-review",
	status.StatusDone:               "done",
}

// reviewLabels maps review sub-states to their label values.
var reviewLabels = map[status.ReviewStatus]string{
	status.ReviewWaitingForReview:      "waiting-for-review",
	status.ReviewApproved:              "approved",
	status.ReviewRequestChanges:        "request-changes",
	status.ReviewRejected:              "rejected",
	status.ReviewWaitingClarification:  "waiting-for-clarification",
	status.ReviewClarificationReceived: "clarification-received",
	status.ReviewWaitingDecision:       "waiting-for-decision",
	status.ReviewDecisionSubmitted:     "decision-submitted",
}

var labelToStatus = invert(statusLabels)
var labelToReview = invert(reviewLabels)

func invert[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// StatusLabel returns the scoped label for a phase.
func StatusLabel(st status.Status) string {
	return phaseLabelPrefix + ":" + statusLabels[st]
}

// ReviewLabel returns the scoped label for a review sub-state.
func ReviewLabel(rs status.ReviewStatus) string {
	return reviewLabelPrefix + ":" + reviewLabels[rs]
}

// implLabel formats the implementation-phase label for "X/N" tracking.
func implLabel(phase string) string {
	return implLabelPrefix + ":" + phase
}

// KindLabel returns the label carrying the item kind on a freshly created
// card.
func KindLabel(kind status.ItemKind) string {
	return "kind:" + string(kind)
}

// parseLabelName extracts prefix and value from a scoped label like
// "phase:backlog" or "phase/backlog". Both separators are accepted since
// labels are occasionally hand-edited on the board.
func parseLabelName(name string) (prefix, value string) {
	if parts := strings.SplitN(name, ":", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	if parts := strings.SplitN(name, "/", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", name
}

// cardFromIssue translates a wire issue into a typed Card. Unknown scoped
// values are ignored rather than failing the whole card: a stray hand-made
// label must not take the item offline.
func cardFromIssue(gh *issue) *Card {
	card := &Card{
		ID:        gh.NodeID,
		Number:    gh.Number,
		Title:     gh.Title,
		Body:      gh.Body,
		URL:       gh.HTMLURL,
		State:     gh.State,
		CreatedAt: gh.CreatedAt,
		UpdatedAt: gh.UpdatedAt,
	}
	for _, l := range gh.Labels {
		card.Labels = append(card.Labels, l.Name)
		prefix, value := parseLabelName(l.Name)
		switch prefix {
		case phaseLabelPrefix:
			if st, ok := labelToStatus[value]; ok {
				card.Status = st
			}
		case reviewLabelPrefix:
			if rs, ok := labelToReview[value]; ok {
				card.ReviewStatus = rs
			}
		case implLabelPrefix:
			card.ImplementationPhase = value
		}
	}
	return card
}

// replaceScopedLabel returns a copy of labels with every label under prefix
// removed and, when value is non-empty, the new scoped label appended.
func replaceScopedLabel(labels []string, prefix, value string) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		p, _ := parseLabelName(l)
		if p == prefix {
			continue
		}
		out = append(out, l)
	}
	if value != "" {
		out = append(out, prefix+":"+value)
	}
	return out
}

// FormatImplementationPhase renders the "X/N" tracker value.
func FormatImplementationPhase(current, total int) string {
	return fmt.Sprintf("%d/%d", current, total)
}

// ParseImplementationPhase splits an "X/N" tracker value.
func ParseImplementationPhase(phase string) (current, total int, err error) {
	if _, err = fmt.Sscanf(phase, "%d/%d", &current, &total); err != nil {
		return 0, 0, fmt.Errorf("malformed implementation phase %q: %w", phase, err)
	}
	if current < 1 || total < 1 || current > total {
		return 0, 0, fmt.Errorf("implementation phase %q out of range", phase)
	}
	return current, total, nil
}
