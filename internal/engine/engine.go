// Package engine applies validated state transitions to work items. Every
// flow that moves an item between phases funnels through Engine.Transition,
// which is the single place where the current card is fetched, the move is
// validated, and the external board plus local mirror are updated.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/status"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

// ErrNotFound is returned when the item has no matching card on the board.
// This lookup is the validation gate every higher-level flow relies on.
var ErrNotFound = errors.New("work item not found on board")

// Actor tags who initiated a transition in the audit trail.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// AgentActor tags a transition initiated by a named AI agent.
func AgentActor(name string) Actor {
	return Actor("agent:" + name)
}

// ItemRef identifies a work item across stores.
type ItemRef struct {
	BusinessID    string
	TrackerNumber int
	Kind          status.ItemKind
}

// Mutation describes the desired state change. A nil Status leaves the phase
// untouched; Review carries tri-state semantics (keep, clear, or set).
type Mutation struct {
	Status *status.Status
	Review status.ReviewChange
}

// Result reports what a transition did.
type Result struct {
	TrackerNumber int
	From          status.Status
	To            status.Status
	FromReview    status.ReviewStatus
	ToReview      status.ReviewStatus
}

// Board is the slice of the board gateway the engine needs.
type Board interface {
	FindCardByNumber(ctx context.Context, number int) (*board.Card, error)
	UpdateStatus(ctx context.Context, number int, st status.Status) error
	UpdateReviewStatus(ctx context.Context, number int, rs status.ReviewStatus) error
	ClearReviewStatus(ctx context.Context, number int) error
}

// Mirror is the slice of the local mirror the engine needs. Mirror writes are
// best-effort: the board is the source of truth.
type Mirror interface {
	ApplyState(ctx context.Context, businessID string, st *status.Status, review status.ReviewChange, implPhase *string) error
	AppendHistory(ctx context.Context, entry *mirror.HistoryEntry) error
}

// Engine coordinates board and mirror writes for a single transition.
type Engine struct {
	board  Board
	mirror Mirror

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// New creates an Engine over the given board gateway and mirror store.
func New(b Board, m Mirror) *Engine {
	e := &Engine{
		board:  b,
		mirror: m,
		tracer: telemetry.Tracer("engine"),
	}
	if ctr, err := telemetry.Meter("engine").Int64Counter("conveyor.transitions"); err == nil {
		e.transitions = ctr
	}
	return e
}

// Transition validates and applies a mutation. The status write lands first,
// then the review write, as two independent board calls. Once both succeed
// the mirror is updated and one history entry is appended; failures in those
// last two steps are logged, never propagated.
func (e *Engine) Transition(ctx context.Context, ref ItemRef, mut Mutation, actor Actor) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Transition")
	defer span.End()

	card, err := e.board.FindCardByNumber(ctx, ref.TrackerNumber)
	if err != nil {
		if errors.Is(err, board.ErrCardNotFound) {
			return nil, fmt.Errorf("%w: card #%d", ErrNotFound, ref.TrackerNumber)
		}
		return nil, fmt.Errorf("failed to look up card #%d: %w", ref.TrackerNumber, err)
	}

	if mut.Status != nil {
		if err := status.ValidateTransition(card.Status, *mut.Status); err != nil {
			return nil, err
		}
	}

	// Done is terminal for review-only mutations too: no review value may
	// land on a completed item except through a Restore. Clearing (the
	// canonical terminal review state) and no-op re-application stay legal
	// so completion flows can retry.
	if card.Status.IsTerminal() {
		if next := mut.Review.Apply(card.ReviewStatus); next != card.ReviewStatus && next != status.ReviewNone {
			return nil, fmt.Errorf("invalid review change on card #%d: %q is terminal", ref.TrackerNumber, card.Status)
		}
	}

	return e.apply(ctx, ref, card, mut, actor, "transition")
}

// Restore applies a mutation without transition validation. Undo uses it to
// put an item back into a prior state regardless of current adjacency rules,
// including out of Done.
func (e *Engine) Restore(ctx context.Context, ref ItemRef, mut Mutation, actor Actor) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Restore")
	defer span.End()

	card, err := e.board.FindCardByNumber(ctx, ref.TrackerNumber)
	if err != nil {
		if errors.Is(err, board.ErrCardNotFound) {
			return nil, fmt.Errorf("%w: card #%d", ErrNotFound, ref.TrackerNumber)
		}
		return nil, fmt.Errorf("failed to look up card #%d: %w", ref.TrackerNumber, err)
	}
	return e.apply(ctx, ref, card, mut, actor, "restore")
}

func (e *Engine) apply(ctx context.Context, ref ItemRef, card *board.Card, mut Mutation, actor Actor, op string) (*Result, error) {
	res := &Result{
		TrackerNumber: ref.TrackerNumber,
		From:          card.Status,
		To:            card.Status,
		FromReview:    card.ReviewStatus,
		ToReview:      card.ReviewStatus,
	}

	// Re-applying the current status is a legal no-op, not an error.
	if mut.Status != nil && *mut.Status != card.Status {
		if err := e.board.UpdateStatus(ctx, ref.TrackerNumber, *mut.Status); err != nil {
			return nil, fmt.Errorf("failed to update status on card #%d: %w", ref.TrackerNumber, err)
		}
		res.To = *mut.Status
	}

	switch {
	case mut.Review.IsKeep():
	case mut.Review.IsClear():
		if err := e.board.ClearReviewStatus(ctx, ref.TrackerNumber); err != nil {
			return nil, fmt.Errorf("failed to clear review status on card #%d: %w", ref.TrackerNumber, err)
		}
		res.ToReview = ""
	default:
		rs, _ := mut.Review.Value()
		if err := e.board.UpdateReviewStatus(ctx, ref.TrackerNumber, rs); err != nil {
			return nil, fmt.Errorf("failed to update review status on card #%d: %w", ref.TrackerNumber, err)
		}
		res.ToReview = rs
	}

	// Board writes succeeded; everything past here is best-effort.
	if e.mirror != nil && ref.BusinessID != "" {
		if err := e.mirror.ApplyState(ctx, ref.BusinessID, mut.Status, mut.Review, nil); err != nil {
			log.Printf("engine: mirror sync failed for %s: %v", ref.BusinessID, err)
		}
		entry := &mirror.HistoryEntry{
			BusinessID: ref.BusinessID,
			Actor:      string(actor),
			Operation:  op,
			FromStatus: res.From,
			ToStatus:   res.To,
			FromReview: res.FromReview,
			ToReview:   res.ToReview,
		}
		if err := e.mirror.AppendHistory(ctx, entry); err != nil {
			log.Printf("engine: history append failed for %s: %v", ref.BusinessID, err)
		}
	}

	if e.transitions != nil {
		e.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(res.From)),
			attribute.String("to", string(res.To)),
			attribute.String("actor", string(actor)),
		))
	}
	return res, nil
}
