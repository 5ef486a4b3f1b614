package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/routing"
	"github.com/conveyorhq/conveyor/internal/status"
)

// RouteResult reports where a route landed.
type RouteResult struct {
	TargetStatus status.Status `json:"target_status"`
	TargetLabel  string        `json:"target_label"`
}

// Route moves a synced request to an explicit destination. Routing clears the
// review sub-state, except when parking in backlog: backlog is a holding
// state, and whatever review state existed is intentionally preserved.
func (s *Service) Route(ctx context.Context, requestID, destination string, actor engine.Actor) (*RouteResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}

	target, err := routing.DestinationStatus(req.Kind, destination)
	if err != nil {
		if errors.Is(err, routing.ErrUnknownDestination) {
			return nil, fmt.Errorf("%w: %q for %s items (valid: %v)",
				ErrInvalidDestination, destination, req.Kind, routing.Destinations(req.Kind))
		}
		return nil, err
	}

	review := status.ClearReview()
	if destination == routing.DestBacklog {
		review = status.KeepReview()
	}
	if actor == "" {
		actor = engine.ActorAdmin
	}

	if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(target),
		Review: review,
	}, actor); err != nil {
		return nil, err
	}

	s.enqueue(&notify.Message{
		Channel: notify.ChannelInfo,
		Subject: fmt.Sprintf("card #%d routed to %s", req.TrackerNumber, target),
	})

	return &RouteResult{
		TargetStatus: target,
		TargetLabel:  board.StatusLabel(target),
	}, nil
}

// RouteByLocalID routes via a mirror row and a raw status string, as the UI
// listing does. Statuses that are valid phases but not routing targets
// (PR Review, Final Review, Done) are rejected: those edges belong to merges
// and advances.
func (s *Service) RouteByLocalID(ctx context.Context, localID int64, rawStatus string, actor engine.Actor) (*RouteResult, error) {
	rec, err := s.Mirror.GetByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}
	target, err := status.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	destination, ok := routing.StatusToDestination(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotARoutingDestination, target)
	}
	return s.Route(ctx, rec.BusinessID, destination, actor)
}
