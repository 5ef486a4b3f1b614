package flow

import (
	"context"
	"fmt"

	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/status"
)

// DecisionResult reports what applying a decision did: either the item was
// routed to a phase, or it only received a review sub-state (an informational
// decision).
type DecisionResult struct {
	ChosenIndex int                 `json:"chosen_index"`
	RoutedTo    status.Status       `json:"routed_to,omitempty"`
	Review      status.ReviewStatus `json:"review,omitempty"`
}

// ChooseRecommended picks the decision's recommended option and applies it.
func (s *Service) ChooseRecommended(ctx context.Context, requestID string, actor engine.Actor) (*DecisionResult, error) {
	decision, err := s.Docs.GetDecision(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.SubmitDecision(ctx, requestID, decision.RecommendedIndex, status.ReviewApproved, actor)
}

// SubmitDecision records the chosen option and applies its consequences. A
// decision with a routing descriptor routes the item: the chosen option's
// metadata value at the descriptor's key is looked up in the status map and
// the item moves there with review cleared. A decision without one is
// informational: the item's review sub-state is set to the fallback and the
// phase is left untouched.
func (s *Service) SubmitDecision(ctx context.Context, requestID string, chosenIndex int, fallbackReview status.ReviewStatus, actor engine.Actor) (*DecisionResult, error) {
	req, err := s.Docs.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Synced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSynced, req.ID)
	}
	decision, err := s.Docs.GetDecision(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if chosenIndex < 0 || chosenIndex >= len(decision.Options) {
		return nil, fmt.Errorf("decision for %s has no option %d", requestID, chosenIndex)
	}
	if actor == "" {
		actor = engine.ActorAdmin
	}

	if err := s.Docs.SetDecisionChoice(ctx, requestID, chosenIndex); err != nil {
		return nil, err
	}

	result := &DecisionResult{ChosenIndex: chosenIndex}

	if decision.Routing == nil {
		if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
			Review: status.SetReview(fallbackReview),
		}, actor); err != nil {
			return nil, err
		}
		result.Review = fallbackReview
		return result, nil
	}

	target, err := resolveDecisionRoute(decision, chosenIndex)
	if err != nil {
		return nil, err
	}
	if _, err := s.Engine.Transition(ctx, itemRef(req), engine.Mutation{
		Status: statusPtr(target),
		Review: status.ClearReview(),
	}, actor); err != nil {
		return nil, err
	}
	result.RoutedTo = target
	return result, nil
}

// resolveDecisionRoute maps a chosen option to a phase via the routing
// descriptor.
func resolveDecisionRoute(decision *docstore.Decision, chosenIndex int) (status.Status, error) {
	option := decision.Options[chosenIndex]
	value, ok := option.Metadata[decision.Routing.MetadataKey]
	if !ok {
		return "", fmt.Errorf("%w: option %q has no %q",
			ErrRoutingMetadataMissing, option.Label, decision.Routing.MetadataKey)
	}
	target, ok := decision.Routing.StatusMap[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRoutingMapMiss, value)
	}
	return target, nil
}
