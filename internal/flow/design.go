package flow

import (
	"context"
	"fmt"
	"log"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/phaseplan"
	"github.com/conveyorhq/conveyor/internal/status"
)

// Design phase kinds accepted by ApproveDesign.
const (
	PhaseProductDev = "product-dev"
	PhaseProduct    = "product"
	PhaseTech       = "tech"
)

// designAdvance maps each design phase kind to the phase the item moves to
// once that design is approved.
var designAdvance = map[string]status.Status{
	PhaseProductDev: status.StatusProductDesign,
	PhaseProduct:    status.StatusTechnicalDesign,
	PhaseTech:       status.StatusImplementation,
}

// DesignApproval describes an approved design artifact.
type DesignApproval struct {
	// ArtifactKey is where the design content lives in the artifact store.
	ArtifactKey string

	// PhaseKind is one of PhaseProductDev, PhaseProduct, PhaseTech.
	PhaseKind string

	// PRNumber is the pull request the design was produced under, if any.
	PRNumber int

	Actor engine.Actor
}

// DesignApprovalResult reports where the item advanced to.
type DesignApprovalResult struct {
	AdvancedTo status.Status `json:"advanced_to"`
	PhaseCount int           `json:"phase_count,omitempty"`
}

// ApproveDesign records an approved design artifact and advances the item to
// the next phase. The artifact record is persisted before the status moves,
// so a failure between the two steps leaves a recorded artifact on an
// un-advanced item (recoverable by retrying) rather than an advanced item
// with no artifact trail.
//
// Only technical designs carry a phase breakdown: when parsing the artifact
// yields two or more phases, a breakdown comment is posted (once; retries
// find the existing marker) and the implementation tracker starts at "1/N".
// Fewer than two phases means a single-phase implementation with no tracker;
// that is intentional degradation, not an error.
func (s *Service) ApproveDesign(ctx context.Context, requestID string, approval DesignApproval) (*DesignApprovalResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}
	target, ok := designAdvance[approval.PhaseKind]
	if !ok {
		return nil, fmt.Errorf("unknown design phase kind %q", approval.PhaseKind)
	}
	if approval.Actor == "" {
		approval.Actor = engine.ActorSystem
	}

	// Product-development design approval carries no artifact of record; the
	// later phases do.
	if approval.PhaseKind != PhaseProductDev {
		if err := s.Docs.SaveDesignArtifact(ctx, &docstore.DesignArtifact{
			RequestID: req.ID,
			Phase:     approval.PhaseKind,
			Location:  approval.ArtifactKey,
			Status:    "approved",
			PRNumber:  approval.PRNumber,
		}); err != nil {
			return nil, err
		}
		if err := s.Board.AddComment(ctx, req.TrackerNumber,
			fmt.Sprintf("Design approved (%s): `%s`", approval.PhaseKind, approval.ArtifactKey)); err != nil {
			return nil, fmt.Errorf("failed to record design approval on card #%d: %w", req.TrackerNumber, err)
		}
	}

	if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(target),
		Review: status.ClearReview(),
	}, approval.Actor); err != nil {
		return nil, err
	}

	result := &DesignApprovalResult{AdvancedTo: target}

	if approval.PhaseKind == PhaseTech {
		count, err := s.bootstrapPhaseTracker(ctx, req, approval.ArtifactKey)
		if err != nil {
			return nil, err
		}
		result.PhaseCount = count
	}

	s.enqueue(&notify.Message{
		Channel: notify.ChannelInfo,
		Subject: fmt.Sprintf("card #%d design approved, now in %s", req.TrackerNumber, target),
	})
	return result, nil
}

// bootstrapPhaseTracker parses the tech design for a phase breakdown and, for
// multi-phase plans, posts the breakdown comment and starts the "1/N"
// tracker. Returns the phase count (0 for single-phase items).
func (s *Service) bootstrapPhaseTracker(ctx context.Context, req *docstore.Request, artifactKey string) (int, error) {
	content, err := s.Artifacts.Read(ctx, artifactKey)
	if err != nil {
		return 0, err
	}
	phases := phaseplan.Parse(content)
	if !phaseplan.Tracked(phases) {
		return 0, nil
	}

	existing, err := s.Board.FindCommentByMarker(ctx, req.TrackerNumber, phaseplan.Marker)
	if err != nil {
		return 0, fmt.Errorf("failed to check for phase breakdown on card #%d: %w", req.TrackerNumber, err)
	}
	if existing == nil {
		if err := s.Board.AddComment(ctx, req.TrackerNumber, phaseplan.FormatComment(phases)); err != nil {
			return 0, fmt.Errorf("failed to post phase breakdown on card #%d: %w", req.TrackerNumber, err)
		}
	}

	card, err := s.Board.FindCardByNumber(ctx, req.TrackerNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to look up card #%d: %w", req.TrackerNumber, err)
	}

	// The recorded count lands before the retry guard below, so a run that
	// died between starting the tracker and persisting the count still
	// converges on retry. The write is an idempotent update.
	if err := s.Docs.SetPhaseCount(ctx, req.ID, len(phases)); err != nil {
		return 0, err
	}

	if card.ImplementationPhase != "" {
		// A retry after the tracker started must not reset progress.
		return len(phases), nil
	}

	tracker := board.FormatImplementationPhase(1, len(phases))
	if err := s.Board.SetImplementationPhase(ctx, req.TrackerNumber, tracker); err != nil {
		return 0, fmt.Errorf("failed to start phase tracker on card #%d: %w", req.TrackerNumber, err)
	}
	if err := s.Mirror.ApplyState(ctx, req.ID, nil, status.KeepReview(), &tracker); err != nil {
		log.Printf("flow: mirror phase tracker update failed for %s: %v", req.ID, err)
	}
	return len(phases), nil
}
