package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/conveyorhq/conveyor/internal/status"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		BusinessID:    "feat-001",
		Kind:          status.KindFeature,
		Title:         "Add CSV export",
		TrackerID:     "NODE1",
		TrackerNumber: 42,
		Status:        status.StatusBacklog,
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.GetByBusinessID(ctx, "feat-001")
	if err != nil {
		t.Fatalf("GetByBusinessID() error = %v", err)
	}
	if got.TrackerNumber != 42 || got.Status != status.StatusBacklog {
		t.Errorf("record = %+v", got)
	}

	byNumber, err := store.GetByTrackerNumber(ctx, 42)
	if err != nil {
		t.Fatalf("GetByTrackerNumber() error = %v", err)
	}
	if byNumber.BusinessID != "feat-001" {
		t.Errorf("BusinessID = %q", byNumber.BusinessID)
	}

	byLocal, err := store.GetByLocalID(ctx, got.LocalID)
	if err != nil {
		t.Fatalf("GetByLocalID() error = %v", err)
	}
	if byLocal.BusinessID != "feat-001" {
		t.Errorf("BusinessID = %q", byLocal.BusinessID)
	}

	// Upsert is a replace, not a duplicate insert.
	rec.Status = status.StatusTechnicalDesign
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}
	all, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("List() = %d records, want 1", len(all))
	}
	if all[0].Status != status.StatusTechnicalDesign {
		t.Errorf("Status = %q after re-upsert", all[0].Status)
	}
}

func TestGetMisses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetByBusinessID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByBusinessID error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByLocalID(ctx, 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByLocalID error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetByTrackerNumber(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByTrackerNumber error = %v, want ErrNotFound", err)
	}
}

func TestApplyState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		BusinessID:   "bug-007",
		Kind:         status.KindBug,
		Status:       status.StatusImplementation,
		ReviewStatus: status.ReviewRequestChanges,
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	newStatus := status.StatusPRReview
	phase := "2/3"
	if err := store.ApplyState(ctx, "bug-007", &newStatus, status.ClearReview(), &phase); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}

	got, _ := store.GetByBusinessID(ctx, "bug-007")
	if got.Status != status.StatusPRReview {
		t.Errorf("Status = %q, want PR Review", got.Status)
	}
	if got.ReviewStatus != status.ReviewNone {
		t.Errorf("ReviewStatus = %q, want cleared", got.ReviewStatus)
	}
	if got.ImplementationPhase != "2/3" {
		t.Errorf("ImplementationPhase = %q, want 2/3", got.ImplementationPhase)
	}

	// Keep leaves review untouched; nil status leaves status untouched.
	if err := store.ApplyState(ctx, "bug-007", nil, status.SetReview(status.ReviewWaitingForReview), nil); err != nil {
		t.Fatalf("ApplyState() error = %v", err)
	}
	got, _ = store.GetByBusinessID(ctx, "bug-007")
	if got.Status != status.StatusPRReview || got.ReviewStatus != status.ReviewWaitingForReview {
		t.Errorf("record = %+v", got)
	}

	if err := store.ApplyState(ctx, "missing", &newStatus, status.KeepReview(), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ApplyState(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records := []*Record{
		{BusinessID: "a", Kind: status.KindFeature, Status: status.StatusBacklog, TrackerID: "N1"},
		{BusinessID: "b", Kind: status.KindBug, Status: status.StatusBugInvestigation, ReviewStatus: status.ReviewApproved, TrackerID: "N2"},
		{BusinessID: "c", Kind: status.KindFeature, Status: status.StatusBacklog},
	}
	for _, rec := range records {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert(%s) error = %v", rec.BusinessID, err)
		}
	}

	bugs, err := store.List(ctx, Filter{Kind: status.KindBug})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(bugs) != 1 || bugs[0].BusinessID != "b" {
		t.Errorf("bug list = %+v", bugs)
	}

	approved, err := store.List(ctx, Filter{ReviewStatus: status.ReviewApproved})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(approved) != 1 {
		t.Errorf("approved list = %d records, want 1", len(approved))
	}

	synced, err := store.List(ctx, Filter{SyncedOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(synced) != 2 {
		t.Errorf("synced list = %d records, want 2", len(synced))
	}
}

func TestHistoryAppendAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []*HistoryEntry{
		{BusinessID: "feat-001", Actor: "system", Operation: "route",
			FromStatus: status.StatusBacklog, ToStatus: status.StatusTechnicalDesign},
		{BusinessID: "feat-001", Actor: "admin", Operation: "review",
			FromReview: status.ReviewNone, ToReview: status.ReviewApproved},
	}
	for _, e := range entries {
		if err := store.AppendHistory(ctx, e); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	got, err := store.History(ctx, "feat-001", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History() = %d entries, want 2", len(got))
	}
	// Newest first.
	if got[0].Operation != "review" || got[1].Operation != "route" {
		t.Errorf("history order = %s, %s", got[0].Operation, got[1].Operation)
	}
	if got[1].ToStatus != status.StatusTechnicalDesign {
		t.Errorf("ToStatus = %q", got[1].ToStatus)
	}
}

func TestDeletePurgesHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Upsert(ctx, &Record{BusinessID: "x", Kind: status.KindFeature})
	store.AppendHistory(ctx, &HistoryEntry{BusinessID: "x", Actor: "system", Operation: "create"})

	if err := store.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByBusinessID(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record survived delete: %v", err)
	}
	history, _ := store.History(ctx, "x", 10)
	if len(history) != 0 {
		t.Errorf("history survived delete: %d entries", len(history))
	}
}
