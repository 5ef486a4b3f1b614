package phaseplan

import (
	"strings"
	"testing"
)

func TestParseHeadingStyle(t *testing.T) {
	doc := `# Tech Design: search indexing

Some context.

## Phase 1: Schema migration
details

## Phase 2: Backfill job
details

### Phase 3 - Cutover
`
	phases := Parse(doc)
	if len(phases) != 3 {
		t.Fatalf("Parse() = %d phases, want 3", len(phases))
	}
	if phases[0].Number != 1 || phases[0].Title != "Schema migration" {
		t.Errorf("phases[0] = %+v", phases[0])
	}
	if phases[2].Number != 3 || phases[2].Title != "Cutover" {
		t.Errorf("phases[2] = %+v", phases[2])
	}
}

func TestParseNumberedListUnderPlanSection(t *testing.T) {
	doc := `# Tech Design

## Implementation Plan

1. Add the endpoint
2. Wire the worker
3) Ship the flag

## Risks

1. This numbered item is not a phase
`
	phases := Parse(doc)
	if len(phases) != 3 {
		t.Fatalf("Parse() = %d phases, want 3", len(phases))
	}
	if phases[2].Title != "Ship the flag" {
		t.Errorf("phases[2] = %+v", phases[2])
	}
}

func TestParseNoBreakdown(t *testing.T) {
	if phases := Parse("# Design\n\nJust prose, no plan.\n"); phases != nil {
		t.Errorf("Parse() = %v, want nil", phases)
	}
}

func TestParseDedupesAndOrders(t *testing.T) {
	doc := "## Phase 2: Second\n## Phase 1: First\n## Phase 2: Duplicate\n"
	phases := Parse(doc)
	if len(phases) != 2 {
		t.Fatalf("Parse() = %d phases, want 2", len(phases))
	}
	if phases[0].Number != 1 || phases[1].Number != 2 {
		t.Errorf("order = %+v", phases)
	}
	if phases[1].Title != "Second" {
		t.Errorf("duplicate won: %+v", phases[1])
	}
}

func TestTracked(t *testing.T) {
	if Tracked([]Phase{{Number: 1}}) {
		t.Error("single phase must not be tracked")
	}
	if !Tracked([]Phase{{Number: 1}, {Number: 2}}) {
		t.Error("two phases must be tracked")
	}
}

func TestFormatComment(t *testing.T) {
	got := FormatComment([]Phase{
		{Number: 1, Title: "Schema migration"},
		{Number: 2, Title: "Backfill"},
	})
	if !strings.HasPrefix(got, Marker) {
		t.Error("comment missing marker prefix")
	}
	if !strings.Contains(got, "**1/2** Schema migration") {
		t.Errorf("comment = %q", got)
	}
	if !strings.Contains(got, "**2/2** Backfill") {
		t.Errorf("comment = %q", got)
	}
}
