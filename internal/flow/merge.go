package flow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/status"
)

// MergeResult reports what a merge flow did.
type MergeResult struct {
	MergeCommitSHA string        `json:"merge_commit_sha"`
	AdvancedTo     status.Status `json:"advanced_to"`
	NextPhase      string        `json:"next_phase,omitempty"`
}

// phaseBranch names the working branch of one implementation phase.
func phaseBranch(n int) string { return fmt.Sprintf("phase-%d", n) }

// mergePR merges a pull request, tolerating the already-merged case: callers
// retrying a flow after a partial failure fall back to the existing merge
// commit instead of failing on an impossible merge.
func (s *Service) mergePR(ctx context.Context, prNumber int, title, body string) (string, error) {
	sha, err := s.Board.MergePullRequest(ctx, prNumber, title, body)
	if errors.Is(err, board.ErrAlreadyMerged) {
		return s.Board.GetMergeCommitSHA(ctx, prNumber)
	}
	if err != nil {
		return "", fmt.Errorf("failed to merge PR #%d: %w", prNumber, err)
	}
	return sha, nil
}

// MergeImplementationPR completes one implementation phase. For a multi-phase
// item with phases left, the tracker advances to the next phase and the item
// goes back to Implementation; the completed phase branch is deleted. The
// last phase (or an untracked single-phase item) moves to Final Review to
// await the final merge.
func (s *Service) MergeImplementationPR(ctx context.Context, requestID string, prNumber int, actor engine.Actor) (*MergeResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}
	if actor == "" {
		actor = engine.ActorSystem
	}

	sha, err := s.mergePR(ctx, prNumber,
		fmt.Sprintf("Merge implementation PR #%d for %s", prNumber, req.Title), "")
	if err != nil {
		return nil, err
	}

	card, err := s.Board.FindCardByNumber(ctx, req.TrackerNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to look up card #%d: %w", req.TrackerNumber, err)
	}

	var current, total int
	if card.ImplementationPhase != "" {
		if current, total, err = board.ParseImplementationPhase(card.ImplementationPhase); err != nil {
			return nil, err
		}
	}

	// Intermediate phase: bump the tracker and loop back to Implementation.
	if total > 0 && current < total {
		next := board.FormatImplementationPhase(current+1, total)
		if err := s.Board.SetImplementationPhase(ctx, req.TrackerNumber, next); err != nil {
			return nil, fmt.Errorf("failed to advance phase tracker on card #%d: %w", req.TrackerNumber, err)
		}
		if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
			Status: statusPtr(status.StatusImplementation),
			Review: status.ClearReview(),
		}, actor); err != nil {
			return nil, err
		}
		if err := s.Mirror.ApplyState(ctx, req.ID, nil, status.KeepReview(), &next); err != nil {
			log.Printf("flow: mirror phase tracker update failed for %s: %v", req.ID, err)
		}
		if err := s.Board.DeleteBranch(ctx, phaseBranch(current)); err != nil && !errors.Is(err, board.ErrBranchNotFound) {
			log.Printf("flow: phase branch cleanup failed for %s: %v", req.ID, err)
		}

		s.enqueue(&notify.Message{
			Channel: notify.ChannelInfo,
			Subject: fmt.Sprintf("card #%d phase %d/%d merged, now on %s", req.TrackerNumber, current, total, next),
		})
		return &MergeResult{MergeCommitSHA: sha, AdvancedTo: status.StatusImplementation, NextPhase: next}, nil
	}

	// Last phase (or untracked item): hold in Final Review for the final
	// merge.
	if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(status.StatusFinalReview),
		Review: status.ClearReview(),
	}, actor); err != nil {
		return nil, err
	}
	if total > 0 {
		if err := s.Board.DeleteBranch(ctx, phaseBranch(current)); err != nil && !errors.Is(err, board.ErrBranchNotFound) {
			log.Printf("flow: phase branch cleanup failed for %s: %v", req.ID, err)
		}
	}

	s.enqueue(&notify.Message{
		Channel: notify.ChannelActionable,
		Subject: fmt.Sprintf("card #%d implementation merged, awaiting final merge", req.TrackerNumber),
		Buttons: []notify.Button{{Label: "Final merge", Action: "merge:final", Target: req.ID}},
	})
	return &MergeResult{MergeCommitSHA: sha, AdvancedTo: status.StatusFinalReview}, nil
}

// MergeFinalPR merges the item's final pull request and completes it: the
// item goes to Done, the phase tracker is cleared, the source record is
// closed, the work log is archived, and the feature plus per-phase branches
// are deleted. The tracker clear and the source-record close are primary
// mutations and propagate their failures; the whole flow is retryable, so a
// failed completion is re-run rather than half-reported. Mirror sync, log
// archival, branch deletion, and the completion comment are best-effort.
func (s *Service) MergeFinalPR(ctx context.Context, requestID string, prNumber int, actor engine.Actor) (*MergeResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}
	if actor == "" {
		actor = engine.ActorSystem
	}

	pr, err := s.Board.GetPRDetails(ctx, prNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to read PR #%d: %w", prNumber, err)
	}

	sha, err := s.mergePR(ctx, prNumber, fmt.Sprintf("Complete %s", req.Title), "")
	if err != nil {
		return nil, err
	}

	if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(status.StatusDone),
		Review: status.ClearReview(),
	}, actor); err != nil {
		return nil, err
	}

	if err := s.Board.ClearImplementationPhase(ctx, req.TrackerNumber); err != nil {
		return nil, fmt.Errorf("failed to clear phase tracker on card #%d: %w", req.TrackerNumber, err)
	}
	if err := s.Docs.UpdateSourceStatus(ctx, req.ID, docstore.SourceStatusDone); err != nil {
		return nil, fmt.Errorf("failed to close source record %s: %w", req.ID, err)
	}
	empty := ""
	if err := s.Mirror.ApplyState(ctx, req.ID, nil, status.KeepReview(), &empty); err != nil {
		logMirrorFailure(req.ID, err)
	}
	s.archiveLog(ctx, req.ID)

	// Branch cleanup, each deletion individually tolerant of "already gone".
	branches := []string{pr.HeadBranch}
	for i := 1; i <= req.PhaseCount; i++ {
		branches = append(branches, phaseBranch(i))
	}
	for _, name := range branches {
		if name == "" {
			continue
		}
		if err := s.Board.DeleteBranch(ctx, name); err != nil && !errors.Is(err, board.ErrBranchNotFound) {
			log.Printf("flow: branch cleanup failed for %s on %s: %v", name, req.ID, err)
		}
	}

	// Completion comment last; the merge and Done transition stand either
	// way.
	if err := s.Board.AddComment(ctx, req.TrackerNumber,
		fmt.Sprintf("Completed in %s.", sha)); err != nil {
		log.Printf("flow: completion comment failed on card #%d: %v", req.TrackerNumber, err)
	}

	s.enqueue(&notify.Message{
		Channel: notify.ChannelInfo,
		Subject: fmt.Sprintf("%q is done (card #%d)", req.Title, req.TrackerNumber),
	})
	return &MergeResult{MergeCommitSHA: sha, AdvancedTo: status.StatusDone}, nil
}

// archiveLog moves the running work log into the archive. Best-effort.
func (s *Service) archiveLog(ctx context.Context, requestID string) {
	content, err := s.Artifacts.Read(ctx, artifactLogKey(requestID))
	if err != nil || content == "" {
		return
	}
	if err := s.Artifacts.Write(ctx, artifactArchiveKey(requestID), content); err != nil {
		log.Printf("flow: log archival failed for %s: %v", requestID, err)
		return
	}
	if err := s.Artifacts.Delete(ctx, artifactLogKey(requestID)); err != nil {
		log.Printf("flow: log cleanup failed for %s: %v", requestID, err)
	}
}
