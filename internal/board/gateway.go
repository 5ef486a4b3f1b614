package board

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/status"
)

// Gateway is the interface satisfied by *Client. It is the only path to
// mutating the system of record; consumers depend on it rather than on the
// concrete client so tests can substitute fakes.
//
// Cards are addressed by their repository-scoped number, the same small
// integer humans reference ("issue #42").
type Gateway interface {
	// Card lookup and listing.
	ListCards(ctx context.Context, filter CardFilter) ([]*Card, error)
	FindCardByNumber(ctx context.Context, number int) (*Card, error)

	// Card creation and mutation. Status and review status are written as
	// two independent calls by design: the board offers no multi-field
	// atomic write, and the transition engine owns the ordering.
	CreateCard(ctx context.Context, title, body string, labels []string) (*Card, error)
	UpdateStatus(ctx context.Context, number int, st status.Status) error
	UpdateReviewStatus(ctx context.Context, number int, rs status.ReviewStatus) error
	ClearReviewStatus(ctx context.Context, number int) error
	SetImplementationPhase(ctx context.Context, number int, phase string) error
	ClearImplementationPhase(ctx context.Context, number int) error
	UpdateTitle(ctx context.Context, number int, title string) error
	CloseCard(ctx context.Context, number int) error

	// Comments.
	AddComment(ctx context.Context, number int, body string) error
	FindCommentByMarker(ctx context.Context, number int, marker string) (*Comment, error)

	// Pull requests and branches.
	MergePullRequest(ctx context.Context, number int, title, body string) (string, error)
	GetMergeCommitSHA(ctx context.Context, number int) (string, error)
	GetPRDetails(ctx context.Context, number int) (*PRDetails, error)
	CreateRevertPR(ctx context.Context, sha string, originalPR, cardNumber int) (int, error)
	DeleteBranch(ctx context.Context, name string) error
}

var _ Gateway = (*Client)(nil)
