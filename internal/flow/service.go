// Package flow implements the compound operations that move work items
// through the pipeline: approval, routing, design approval, merges, undo,
// batch auto-advance, and decision routing. Each flow runs to completion
// independently; there is no in-process locking, and correctness under
// concurrency rests on the board's per-field last-write-wins semantics plus
// the idempotency of individual operations.
package flow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/conveyorhq/conveyor/internal/artifact"
	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/status"
)

// Flow-level sentinel errors. Front-ends map these to user-facing messages.
var (
	ErrAlreadyApproved        = errors.New("request already approved")
	ErrNotSynced              = errors.New("request has no board card yet")
	ErrInvalidDestination     = errors.New("invalid routing destination")
	ErrNotARoutingDestination = errors.New("status is not a routing destination")
	ErrExpired                = errors.New("undo window expired")
	ErrRoutingMetadataMissing = errors.New("chosen option missing routing metadata")
	ErrRoutingMapMiss         = errors.New("routing metadata value has no status mapping")
	ErrNotDeletable           = errors.New("approved request requires force to delete")
)

// DefaultUndoWindow is how long an operation stays undoable.
const DefaultUndoWindow = 300000 * time.Millisecond

// DocumentStore is the slice of the document store the flows need.
// *docstore.Store satisfies it.
type DocumentStore interface {
	GetRequest(ctx context.Context, id string) (*docstore.Request, error)
	GetRequestByTrackerNumber(ctx context.Context, number int) (*docstore.Request, error)
	SetTracker(ctx context.Context, id, trackerID string, number int, url string) error
	UpdateSourceStatus(ctx context.Context, id, sourceStatus string) error
	UpdateTitle(ctx context.Context, id, title string) error
	UpdatePriority(ctx context.Context, id string, priority int) error
	SetPhaseCount(ctx context.Context, id string, count int) error
	DeleteRequest(ctx context.Context, id string) error
	SaveDesignArtifact(ctx context.Context, a *docstore.DesignArtifact) error
	GetDecision(ctx context.Context, requestID string) (*docstore.Decision, error)
	SetDecisionChoice(ctx context.Context, requestID string, index int) error
}

// MirrorStore is the slice of the local mirror the flows need. *mirror.Store
// satisfies it (and engine.Mirror).
type MirrorStore interface {
	engine.Mirror
	Upsert(ctx context.Context, rec *mirror.Record) error
	GetByBusinessID(ctx context.Context, businessID string) (*mirror.Record, error)
	GetByLocalID(ctx context.Context, localID int64) (*mirror.Record, error)
	UpdateTitle(ctx context.Context, businessID, title string) error
	Delete(ctx context.Context, businessID string) error
	List(ctx context.Context, filter mirror.Filter) ([]*mirror.Record, error)
}

// Service wires the collaborators behind the flows.
type Service struct {
	Board     board.Gateway
	Docs      DocumentStore
	Mirror    MirrorStore
	Engine    *engine.Engine
	Artifacts artifact.Store
	Notify    *notify.Queue

	// UndoWindow bounds how old an undoable action may be. Zero means
	// DefaultUndoWindow.
	UndoWindow time.Duration

	// now is swapped by tests to pin the clock.
	now func() time.Time
}

// NewService builds a Service over the given collaborators.
func NewService(b board.Gateway, docs DocumentStore, m MirrorStore, art artifact.Store, q *notify.Queue) *Service {
	return &Service{
		Board:      b,
		Docs:       docs,
		Mirror:     m,
		Engine:     engine.New(b, m),
		Artifacts:  art,
		Notify:     q,
		UndoWindow: DefaultUndoWindow,
		now:        time.Now,
	}
}

// itemRef builds the engine reference for a synced request.
func itemRef(req *docstore.Request) engine.ItemRef {
	return engine.ItemRef{
		BusinessID:    req.ID,
		TrackerNumber: req.TrackerNumber,
		Kind:          req.Kind,
	}
}

// enqueue is the fire-and-forget notification hook. A nil queue drops the
// message.
func (s *Service) enqueue(msg *notify.Message) {
	if s.Notify == nil {
		return
	}
	s.Notify.Enqueue(msg)
}

// artifactLogKey is where a request's running work log lives.
func artifactLogKey(requestID string) string { return "logs/" + requestID + ".md" }

// artifactArchiveKey is where a completed request's log is archived.
func artifactArchiveKey(requestID string) string { return "archive/" + requestID + ".md" }

func statusPtr(st status.Status) *status.Status { return &st }

// logMirrorFailure records a best-effort mirror write that did not land.
func logMirrorFailure(businessID string, err error) {
	log.Printf("flow: mirror update failed for %s: %v", businessID, err)
}
