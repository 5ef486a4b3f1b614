package flow

import (
	"context"
	"fmt"
	"log"

	"github.com/conveyorhq/conveyor/internal/phaseplan"
)

// Delete removes a request and everything derived from it. A request that
// was never approved has no board presence and purges cleanly; deleting an
// approved request requires force, which additionally closes the card.
func (s *Service) Delete(ctx context.Context, requestID string, force bool) error {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Synced() {
		if !force {
			return fmt.Errorf("%w: %s is card #%d", ErrNotDeletable, req.ID, req.TrackerNumber)
		}
		if err := s.Board.CloseCard(ctx, req.TrackerNumber); err != nil {
			// The record purge proceeds; an orphaned open card is visible
			// and fixable, a half-deleted record is not.
			log.Printf("flow: failed to close card #%d while deleting %s: %v", req.TrackerNumber, req.ID, err)
		}
	}

	if err := s.Docs.DeleteRequest(ctx, requestID); err != nil {
		return err
	}
	if err := s.Mirror.Delete(ctx, requestID); err != nil {
		logMirrorFailure(requestID, err)
	}
	for _, key := range []string{artifactLogKey(requestID), artifactArchiveKey(requestID)} {
		if err := s.Artifacts.Delete(ctx, key); err != nil {
			log.Printf("flow: artifact cleanup failed for %s: %v", key, err)
		}
	}
	return nil
}

// UpdateOptions carries the mutable request fields. Nil pointers leave a
// field untouched.
type UpdateOptions struct {
	Title    *string
	Priority *int
}

// Update edits a request's title or priority. Title changes propagate to the
// board card and the mirror for synced requests.
func (s *Service) Update(ctx context.Context, requestID string, opts UpdateOptions) error {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if opts.Title != nil {
		if err := s.Docs.UpdateTitle(ctx, requestID, *opts.Title); err != nil {
			return err
		}
		if req.Synced() {
			if err := s.Board.UpdateTitle(ctx, req.TrackerNumber, *opts.Title); err != nil {
				return fmt.Errorf("failed to rename card #%d: %w", req.TrackerNumber, err)
			}
			if err := s.Mirror.UpdateTitle(ctx, requestID, *opts.Title); err != nil {
				logMirrorFailure(requestID, err)
			}
		}
	}
	if opts.Priority != nil {
		if err := s.Docs.UpdatePriority(ctx, requestID, *opts.Priority); err != nil {
			return err
		}
	}
	return nil
}

// AppendLog appends an entry to the request's running work log.
func (s *Service) AppendLog(ctx context.Context, requestID, entry string) error {
	return s.Artifacts.Append(ctx, artifactLogKey(requestID), entry)
}

// PhasePlanMarker exposes the breakdown comment marker to front-ends that
// need to recognize the comment.
const PhasePlanMarker = phaseplan.Marker
