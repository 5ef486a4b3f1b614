package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conveyorhq/conveyor/internal/artifact"
	"github.com/conveyorhq/conveyor/internal/board"
	"github.com/conveyorhq/conveyor/internal/docstore"
	"github.com/conveyorhq/conveyor/internal/mirror"
	"github.com/conveyorhq/conveyor/internal/notify"
	"github.com/conveyorhq/conveyor/internal/status"
)

// fakePR is the merge-relevant state of one pull request on the fake board.
type fakePR struct {
	merged bool
	sha    string
	head   string
}

// fakeGateway is an in-memory board.Gateway.
type fakeGateway struct {
	mu         sync.Mutex
	nextNumber int
	cards      map[int]*board.Card
	comments   map[int][]string
	prs        map[int]*fakePR
	branches   map[string]bool
	deleted    []string

	failComment    error
	failStatusAt   status.Status // UpdateStatus to this value fails
	failClearPhase error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextNumber: 100,
		cards:      make(map[int]*board.Card),
		comments:   make(map[int][]string),
		prs:        make(map[int]*fakePR),
		branches:   make(map[string]bool),
	}
}

func (g *fakeGateway) ListCards(_ context.Context, filter board.CardFilter) ([]*board.Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*board.Card
	for _, c := range g.cards {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.ReviewStatus != "" && c.ReviewStatus != filter.ReviewStatus {
			continue
		}
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (g *fakeGateway) FindCardByNumber(_ context.Context, number int) (*board.Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[number]
	if !ok {
		return nil, board.ErrCardNotFound
	}
	cc := *c
	return &cc, nil
}

func (g *fakeGateway) CreateCard(_ context.Context, title, body string, labels []string) (*board.Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextNumber++
	card := &board.Card{
		ID:     fmt.Sprintf("NODE_%d", g.nextNumber),
		Number: g.nextNumber,
		Title:  title,
		Body:   body,
		URL:    fmt.Sprintf("https://example.test/cards/%d", g.nextNumber),
		State:  "open",
		Labels: labels,
	}
	for _, l := range labels {
		for _, st := range []status.Status{
			status.StatusBacklog, status.StatusProductDevelopment,
			status.StatusProductDesign, status.StatusBugInvestigation,
			status.StatusTechnicalDesign, status.StatusImplementation,
			status.StatusPRReview, status.StatusFinalReview, status.StatusDone,
		} {
			if l == board.StatusLabel(st) {
				card.Status = st
			}
		}
	}
	g.cards[card.Number] = card
	return card, nil
}

func (g *fakeGateway) UpdateStatus(_ context.Context, number int, st status.Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failStatusAt != "" && st == g.failStatusAt {
		return errors.New("board unavailable")
	}
	c, ok := g.cards[number]
	if !ok {
		return board.ErrCardNotFound
	}
	c.Status = st
	return nil
}

func (g *fakeGateway) UpdateReviewStatus(_ context.Context, number int, rs status.ReviewStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[number]
	if !ok {
		return board.ErrCardNotFound
	}
	c.ReviewStatus = rs
	return nil
}

func (g *fakeGateway) ClearReviewStatus(_ context.Context, number int) error {
	return g.UpdateReviewStatus(context.Background(), number, status.ReviewNone)
}

func (g *fakeGateway) SetImplementationPhase(_ context.Context, number int, phase string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[number]
	if !ok {
		return board.ErrCardNotFound
	}
	c.ImplementationPhase = phase
	return nil
}

func (g *fakeGateway) ClearImplementationPhase(ctx context.Context, number int) error {
	if g.failClearPhase != nil {
		return g.failClearPhase
	}
	return g.SetImplementationPhase(ctx, number, "")
}

func (g *fakeGateway) UpdateTitle(_ context.Context, number int, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[number]
	if !ok {
		return board.ErrCardNotFound
	}
	c.Title = title
	return nil
}

func (g *fakeGateway) CloseCard(_ context.Context, number int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[number]
	if !ok {
		return board.ErrCardNotFound
	}
	c.State = "closed"
	return nil
}

func (g *fakeGateway) AddComment(_ context.Context, number int, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failComment != nil {
		return g.failComment
	}
	g.comments[number] = append(g.comments[number], body)
	return nil
}

func (g *fakeGateway) FindCommentByMarker(_ context.Context, number int, marker string) (*board.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, body := range g.comments[number] {
		if strings.Contains(body, marker) {
			return &board.Comment{ID: int64(i + 1), Body: body}, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) MergePullRequest(_ context.Context, number int, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pr, ok := g.prs[number]
	if !ok {
		return "", board.ErrCardNotFound
	}
	if pr.merged {
		return "", board.ErrAlreadyMerged
	}
	pr.merged = true
	return pr.sha, nil
}

func (g *fakeGateway) GetMergeCommitSHA(_ context.Context, number int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pr, ok := g.prs[number]
	if !ok || !pr.merged {
		return "", fmt.Errorf("PR #%d has no merge commit", number)
	}
	return pr.sha, nil
}

func (g *fakeGateway) GetPRDetails(_ context.Context, number int) (*board.PRDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pr, ok := g.prs[number]
	if !ok {
		return nil, board.ErrCardNotFound
	}
	return &board.PRDetails{
		Number:         number,
		State:          "open",
		Merged:         pr.merged,
		HeadBranch:     pr.head,
		MergeCommitSHA: pr.sha,
	}, nil
}

func (g *fakeGateway) CreateRevertPR(_ context.Context, _ string, originalPR, _ int) (int, error) {
	return originalPR + 1000, nil
}

func (g *fakeGateway) DeleteBranch(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.branches[name] {
		return board.ErrBranchNotFound
	}
	delete(g.branches, name)
	g.deleted = append(g.deleted, name)
	return nil
}

func (g *fakeGateway) addPR(number int, sha, head string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prs[number] = &fakePR{sha: sha, head: head}
	if head != "" {
		g.branches[head] = true
	}
}

func (g *fakeGateway) addBranch(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches[name] = true
}

func (g *fakeGateway) card(t *testing.T, number int) *board.Card {
	t.Helper()
	c, err := g.FindCardByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("card #%d: %v", number, err)
	}
	return c
}

var _ board.Gateway = (*fakeGateway)(nil)

var errBoardDown = errors.New("board unavailable")

// captureSender records delivered notifications.
type captureSender struct {
	mu  sync.Mutex
	got []*notify.Message
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, msg *notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg)
	return nil
}

type fixture struct {
	svc    *Service
	gw     *fakeGateway
	docs   *docstore.Store
	mir    *mirror.Store
	sender *captureSender
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	docs, err := docstore.Open(":memory:")
	if err != nil {
		t.Fatalf("docstore.Open() error = %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	mir, err := mirror.Open(":memory:")
	if err != nil {
		t.Fatalf("mirror.Open() error = %v", err)
	}
	t.Cleanup(func() { mir.Close() })

	art, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.NewFSStore() error = %v", err)
	}

	sender := &captureSender{}
	gw := newFakeGateway()
	svc := NewService(gw, docs, mir, art, notify.NewQueue(sender))

	f := &fixture{
		svc:    svc,
		gw:     gw,
		docs:   docs,
		mir:    mir,
		sender: sender,
		now:    time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
	svc.now = func() time.Time { return f.now }
	return f
}

// drain flushes the notification queue and returns what was delivered.
func (f *fixture) drain() []*notify.Message {
	f.svc.Notify.Drain(context.Background())
	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	out := make([]*notify.Message, len(f.sender.got))
	copy(out, f.sender.got)
	f.sender.got = nil
	return out
}

// newRequest inserts an unapproved request.
func (f *fixture) newRequest(t *testing.T, kind status.ItemKind, title string) *docstore.Request {
	t.Helper()
	req := &docstore.Request{Kind: kind, Title: title, Body: "details", Priority: 2}
	if err := f.docs.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	return req
}

// approvedRequest inserts and approves a request, returning the refreshed
// record.
func (f *fixture) approvedRequest(t *testing.T, kind status.ItemKind, title string, opts ApproveOptions) *docstore.Request {
	t.Helper()
	req := f.newRequest(t, kind, title)
	if _, err := f.svc.Approve(context.Background(), req.ID, opts); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	refreshed, err := f.docs.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	f.drain()
	return refreshed
}
