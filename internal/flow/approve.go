package flow

import (
	"context"
	"fmt"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/routing"
	"github.com/conveyorhq/conveyor/internal/status"
)

// ApproveOptions tunes the approval flow.
type ApproveOptions struct {
	// InitialRoute sends the fresh card straight to a destination instead of
	// leaving it for human routing.
	InitialRoute string

	// InitialStatusOverride creates the card directly in the given phase,
	// bypassing routing entirely.
	InitialStatusOverride *status.Status

	Actor engine.Actor
}

// ApproveResult reports the board identity assigned to the request.
type ApproveResult struct {
	TrackerNumber int    `json:"tracker_number"`
	TrackerURL    string `json:"tracker_url"`
	NeedsRouting  bool   `json:"needs_routing"`
}

// Approve promotes a request to a board card. It is the one flow that is not
// safe to retry: a request with a tracker ref is already approved, and
// re-approval fails rather than creating a duplicate card.
func (s *Service) Approve(ctx context.Context, requestID string, opts ApproveOptions) (*ApproveResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Synced() {
		return nil, fmt.Errorf("%w: %s is card #%d", ErrAlreadyApproved, req.ID, req.TrackerNumber)
	}

	if opts.Actor == "" {
		opts.Actor = engine.ActorSystem
	}

	initial := status.StatusBacklog
	if opts.InitialStatusOverride != nil {
		initial = *opts.InitialStatusOverride
	}

	labels := []string{
		board.KindLabel(req.Kind),
		board.StatusLabel(initial),
	}
	card, err := s.Board.CreateCard(ctx, req.Title, req.Body, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to create card for %s: %w", req.ID, err)
	}

	if err := s.Docs.SetTracker(ctx, req.ID, card.ID, card.Number, card.URL); err != nil {
		return nil, err
	}
	req.TrackerID = card.ID
	req.TrackerNumber = card.Number
	req.TrackerURL = card.URL
	if err := s.Docs.UpdateSourceStatus(ctx, req.ID, docstore.SourceStatusInProgress); err != nil {
		return nil, err
	}

	if err := s.Mirror.Upsert(ctx, &mirror.Record{
		BusinessID:    req.ID,
		Kind:          req.Kind,
		Title:         req.Title,
		TrackerID:     card.ID,
		TrackerNumber: card.Number,
		TrackerURL:    card.URL,
		Status:        initial,
	}); err != nil {
		// The card exists and the doc record points at it; a stale mirror is
		// tolerable.
		logMirrorFailure(req.ID, err)
	}

	// Bugs never wait for human routing: they go straight to investigation.
	route := opts.InitialRoute
	if route == "" && req.Kind == status.KindBug && opts.InitialStatusOverride == nil {
		route = routing.DestInvestigation
	}
	if route != "" && route != routing.DestBacklog {
		if _, err := s.Route(ctx, req.ID, route, opts.Actor); err != nil {
			return nil, err
		}
	}

	needsRouting := req.Kind == status.KindFeature &&
		opts.InitialRoute == "" && opts.InitialStatusOverride == nil

	if needsRouting {
		s.enqueue(&notify.Message{
			Channel: notify.ChannelActionable,
			Subject: fmt.Sprintf("%q approved as card #%d and needs routing", req.Title, card.Number),
			Buttons: routeButtons(req),
		})
	} else {
		s.enqueue(&notify.Message{
			Channel: notify.ChannelInfo,
			Subject: fmt.Sprintf("%q approved as card #%d", req.Title, card.Number),
		})
	}

	return &ApproveResult{
		TrackerNumber: card.Number,
		TrackerURL:    card.URL,
		NeedsRouting:  needsRouting,
	}, nil
}

// routeButtons renders one action button per legal destination.
func routeButtons(req *docstore.Request) []notify.Button {
	dests := routing.Destinations(req.Kind)
	buttons := make([]notify.Button, 0, len(dests))
	for _, d := range dests {
		buttons = append(buttons, notify.Button{
			Label:  d,
			Action: "route:" + d,
			Target: req.ID,
		})
	}
	return buttons
}
