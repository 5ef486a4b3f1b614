// Package phaseplan parses an implementation phase breakdown out of a
// technical design document. Designs describe phases either as headings
// ("## Phase 1: Schema migration") or as a numbered list under a plan
// section; both forms are recognized.
package phaseplan

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Marker identifies a phase-breakdown comment on a card. Approval retries
// look for it before posting so the breakdown is only ever posted once.
const Marker = "<!-- conveyor:phase-plan -->"

// Items with fewer parsed phases get no tracker and run as a single
// implementation pass.
const minTrackedPhases = 2

// Phase is one step of a multi-phase implementation plan.
type Phase struct {
	Number int
	Title  string
}

var (
	headingRe = regexp.MustCompile(`(?i)^#{1,6}\s*phase\s+(\d+)\s*[:.\-]?\s*(.*)$`)
	sectionRe = regexp.MustCompile(`(?i)^#{1,6}\s*(implementation\s+)?(phases|plan|phase\s+breakdown)\b`)
	listRe    = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+)$`)
	anyHeadRe = regexp.MustCompile(`^#{1,6}\s`)
)

// Parse extracts the phase breakdown from design content. It returns phases
// ordered by number with duplicates dropped, or nil when no breakdown is
// present.
func Parse(content string) []Phase {
	if phases := parseHeadings(content); len(phases) > 0 {
		return phases
	}
	return parsePlanSection(content)
}

// Tracked reports whether the plan is big enough to warrant a phase tracker.
func Tracked(phases []Phase) bool {
	return len(phases) >= minTrackedPhases
}

func parseHeadings(content string) []Phase {
	seen := make(map[int]bool)
	var phases []Phase
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		m := headingRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		phases = append(phases, Phase{Number: n, Title: strings.TrimSpace(m[2])})
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].Number < phases[j].Number })
	return phases
}

// parsePlanSection collects numbered list items between a plan heading and
// the next heading.
func parsePlanSection(content string) []Phase {
	var phases []Phase
	inSection := false
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if sectionRe.MatchString(line) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if anyHeadRe.MatchString(line) {
			break
		}
		if m := listRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				continue
			}
			phases = append(phases, Phase{Number: n, Title: strings.TrimSpace(m[2])})
		}
	}
	return phases
}

// FormatComment renders the breakdown as a card comment. The marker goes
// first so FindCommentByMarker can match on a prefix.
func FormatComment(phases []Phase) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n## Implementation Phases\n\n")
	for _, p := range phases {
		title := p.Title
		if title == "" {
			title = fmt.Sprintf("Phase %d", p.Number)
		}
		fmt.Fprintf(&b, "- [ ] **%d/%d** %s\n", p.Number, len(phases), title)
	}
	return b.String()
}
