package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/routing"
	"github.com/conveyorhq/conveyor/internal/status"
)

// BatchDetail is the per-item outcome of an auto-advance run.
type BatchDetail struct {
	TrackerNumber int           `json:"tracker_number"`
	Title         string        `json:"title"`
	From          status.Status `json:"from"`
	To            status.Status `json:"to,omitempty"`
	Advanced      bool          `json:"advanced"`
	Reason        string        `json:"reason,omitempty"`
}

// BatchResult summarizes an auto-advance run.
type BatchResult struct {
	Total    int           `json:"total"`
	Advanced int           `json:"advanced"`
	Failed   int           `json:"failed"`
	DryRun   bool          `json:"dry_run,omitempty"`
	Details  []BatchDetail `json:"details"`
}

// AutoAdvance promotes every approved, not-done card one step along the
// linear chain. Each item is handled independently: one failure never aborts
// the batch. Items sitting in PR Review are counted as failed with a reason:
// that phase completes through merges only. With dryRun set the same details
// are computed without mutating or notifying.
func (s *Service) AutoAdvance(ctx context.Context, dryRun bool) (*BatchResult, error) {
	cards, err := s.Board.ListCards(ctx, board.CardFilter{
		ReviewStatus: status.ReviewApproved,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved cards: %w", err)
	}

	result := &BatchResult{DryRun: dryRun}
	for _, card := range cards {
		if card.Status == status.StatusDone {
			continue
		}
		result.Total++
		detail := BatchDetail{
			TrackerNumber: card.Number,
			Title:         card.Title,
			From:          card.Status,
		}

		if card.Status == status.StatusPRReview {
			detail.Reason = "PR Review completes through merge, not advance"
			result.Failed++
			result.Details = append(result.Details, detail)
			continue
		}

		next, ok := routing.NextStatus(card.Status)
		if !ok {
			detail.Reason = fmt.Sprintf("no auto-advance from %q", card.Status)
			result.Failed++
			result.Details = append(result.Details, detail)
			continue
		}
		detail.To = next

		if dryRun {
			detail.Advanced = true
			result.Advanced++
			result.Details = append(result.Details, detail)
			continue
		}

		if err := s.advanceOne(ctx, card, next); err != nil {
			detail.Advanced = false
			detail.Reason = err.Error()
			result.Failed++
		} else {
			detail.Advanced = true
			result.Advanced++
			s.enqueue(&notify.Message{
				Channel: notify.ChannelInfo,
				Subject: fmt.Sprintf("card #%d advanced to %s", card.Number, next),
			})
		}
		result.Details = append(result.Details, detail)
	}
	return result, nil
}

// advanceOne moves a single card, resolving its business record when one
// exists. Cards with no backing request (hand-made board rows) still advance;
// they just skip the mirror.
func (s *Service) advanceOne(ctx context.Context, card *board.Card, next status.Status) error {
	ref := engine.ItemRef{TrackerNumber: card.Number}
	req, err := s.Docs.GetRequestByTrackerNumber(ctx, card.Number)
	if err == nil {
		ref = itemRef(req)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	_, err = s.Engine.Transition(ctx, ref, engine.Mutation{
		Status: statusPtr(next),
		Review: status.ClearReview(),
	}, engine.ActorSystem)
	return err
}
