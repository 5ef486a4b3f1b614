package routing

import (
	"errors"
	"testing"

	"github.com/conveyorhq/conveyor/internal/status"
)

func TestDestinationStatus(t *testing.T) {
	tests := []struct {
		name        string
		kind        status.ItemKind
		destination string
		want        status.Status
		wantErr     bool
	}{
		{"feature to product-dev", status.KindFeature, DestProductDev, status.StatusProductDevelopment, false},
		{"feature to tech-design", status.KindFeature, DestTechDesign, status.StatusTechnicalDesign, false},
		{"feature to backlog", status.KindFeature, DestBacklog, status.StatusBacklog, false},
		{"bug to investigation", status.KindBug, DestInvestigation, status.StatusBugInvestigation, false},
		{"bug to implementation", status.KindBug, DestImplementation, status.StatusImplementation, false},
		{"bug to product-dev is kind-scoped out", status.KindBug, DestProductDev, "", true},
		{"bug to product-design is kind-scoped out", status.KindBug, DestProductDesign, "", true},
		{"feature to investigation is kind-scoped out", status.KindFeature, DestInvestigation, "", true},
		{"unknown destination", status.KindFeature, "qa", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DestinationStatus(tt.kind, tt.destination)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownDestination) {
					t.Fatalf("DestinationStatus() error = %v, want ErrUnknownDestination", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DestinationStatus() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DestinationStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusToDestination(t *testing.T) {
	tests := []struct {
		st     status.Status
		want   string
		wantOK bool
	}{
		{status.StatusBacklog, DestBacklog, true},
		{status.StatusProductDevelopment, DestProductDev, true},
		{status.StatusProductDesign, DestProductDesign, true},
		{status.StatusBugInvestigation, DestInvestigation, true},
		{status.StatusTechnicalDesign, DestTechDesign, true},
		{status.StatusImplementation, DestImplementation, true},
		{status.StatusPRReview, "", false},
		{status.StatusFinalReview, "", false},
		{status.StatusDone, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.st), func(t *testing.T) {
			got, ok := StatusToDestination(tt.st)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("StatusToDestination(%q) = %q, %v; want %q, %v", tt.st, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNextStatus(t *testing.T) {
	chain := map[status.Status]status.Status{
		status.StatusProductDevelopment: status.StatusProductDesign,
		status.StatusProductDesign:      status.StatusTechnicalDesign,
		status.StatusBugInvestigation:   status.StatusTechnicalDesign,
		status.StatusTechnicalDesign:    status.StatusImplementation,
	}
	for from, want := range chain {
		got, ok := NextStatus(from)
		if !ok || got != want {
			t.Errorf("NextStatus(%q) = %q, %v; want %q, true", from, got, ok, want)
		}
	}

	// Implementation and PR Review must never auto-advance: those edges are
	// owned by artifact creation and merges respectively.
	for _, from := range []status.Status{
		status.StatusBacklog, status.StatusImplementation,
		status.StatusPRReview, status.StatusFinalReview, status.StatusDone,
	} {
		if _, ok := NextStatus(from); ok {
			t.Errorf("NextStatus(%q) ok = true, want false", from)
		}
	}
}

func TestDestinationsAreKindScoped(t *testing.T) {
	feature := Destinations(status.KindFeature)
	bug := Destinations(status.KindBug)

	if len(feature) != 5 {
		t.Errorf("feature destinations = %v, want 5 entries", feature)
	}
	if len(bug) != 4 {
		t.Errorf("bug destinations = %v, want 4 entries", bug)
	}
	for _, d := range bug {
		if d == DestProductDev || d == DestProductDesign {
			t.Errorf("bug destinations contain %q", d)
		}
	}
}
