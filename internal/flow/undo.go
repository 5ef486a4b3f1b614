package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/status"
)

// UndoRequest restores a prior state within a bounded window.
type UndoRequest struct {
	// RestoreStatus is the phase to restore.
	RestoreStatus status.Status

	// RestoreReview carries tri-state semantics: keep the current review
	// sub-state, clear it, or set it. Some undos restore only the phase
	// (keep), others a phase-and-review pair as one unit.
	RestoreReview status.ReviewChange

	// Timestamp is when the original action was taken, captured by the
	// caller at that moment. The window is measured against the wall-clock
	// interval the user experienced, not a server-side event.
	Timestamp time.Time

	// Window overrides the undo window. Zero means the service default.
	Window time.Duration

	Actor engine.Actor
}

// Undo restores a work item to a prior state. It is a blind restore, not a
// compare-and-swap: nothing checks that the current state still matches what
// is being undone, so a concurrent edit inside the window can be silently
// overwritten.
func (s *Service) Undo(ctx context.Context, requestID string, undo UndoRequest) (*engine.Result, error) {
	window := undo.Window
	if window <= 0 {
		window = s.UndoWindow
	}
	if window <= 0 {
		window = DefaultUndoWindow
	}
	if age := s.now().Sub(undo.Timestamp); age > window {
		return nil, fmt.Errorf("%w: action is %s old (window %s)", ErrExpired, age.Round(time.Millisecond), window)
	}

	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}
	actor := undo.Actor
	if actor == "" {
		actor = engine.ActorAdmin
	}

	// Restore bypasses transition validation: undo may legally move an item
	// out of Done or against the forward-only edges.
	return s.Engine.Restore(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(undo.RestoreStatus),
		Review: undo.RestoreReview,
	}, actor)
}
