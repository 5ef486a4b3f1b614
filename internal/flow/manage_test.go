package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/status"
)

func TestDeleteUnapprovedPurgesCleanly(t *testing.T) {
	f := newFixture(t)
	req := f.newRequest(t, status.KindFeature, "dark mode")

	if err := f.svc.Delete(context.Background(), req.ID, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.docs.GetRequest(context.Background(), req.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("GetRequest() after delete error = %v, want ErrNotFound", err)
	}
	if len(f.gw.cards) != 0 {
		t.Error("delete of an unapproved request touched the board")
	}
}

func TestDeleteApprovedRequiresForce(t *testing.T) {
	f := newFixture(t)
	req := f.approvedRequest(t, status.KindFeature, "dark mode", ApproveOptions{})

	if err := f.svc.Delete(context.Background(), req.ID, false); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("Delete() error = %v, want ErrNotDeletable", err)
	}

	if err := f.svc.Delete(context.Background(), req.ID, true); err != nil {
		t.Fatalf("Delete(force) error = %v", err)
	}
	if card := f.gw.card(t, req.TrackerNumber); card.State != "closed" {
		t.Errorf("card state = %q, want closed", card.State)
	}
	if _, err := f.mir.GetByBusinessID(context.Background(), req.ID); !errors.Is(err, mirror.ErrNotFound) {
		t.Errorf("mirror record survived force delete: %v", err)
	}
}

func TestUpdateTitlePropagates(t *testing.T) {
	f := newFixture(t)
	req := f.approvedRequest(t, status.KindFeature, "dark mode", ApproveOptions{})

	title := "dark mode v2"
	if err := f.svc.Update(context.Background(), req.ID, UpdateOptions{Title: &title}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	refreshed, _ := f.docs.GetRequest(context.Background(), req.ID)
	if refreshed.Title != title {
		t.Errorf("request title = %q", refreshed.Title)
	}
	if card := f.gw.card(t, req.TrackerNumber); card.Title != title {
		t.Errorf("card title = %q", card.Title)
	}
	rec, _ := f.mir.GetByBusinessID(context.Background(), req.ID)
	if rec.Title != title {
		t.Errorf("mirror title = %q", rec.Title)
	}
}

func TestUpdatePriority(t *testing.T) {
	f := newFixture(t)
	req := f.newRequest(t, status.KindFeature, "dark mode")

	p := 0
	if err := f.svc.Update(context.Background(), req.ID, UpdateOptions{Priority: &p}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	refreshed, _ := f.docs.GetRequest(context.Background(), req.ID)
	if refreshed.Priority != 0 {
		t.Errorf("priority = %d, want 0", refreshed.Priority)
	}
}
