// Package notify decouples notification delivery from the flows that produce
// notifications. Producers enqueue an intent and return immediately; a
// consumer drains the queue (synchronously in tests, on a ticker in
// production). Delivery failures are logged and never reach the producer;
// a flow's success is independent of whether anyone heard about it.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Channel selects the notification surface.
type Channel string

const (
	// ChannelActionable carries action buttons (routing prompts, review
	// requests).
	ChannelActionable Channel = "actionable"
	// ChannelInfo is status-only.
	ChannelInfo Channel = "info"
)

// Button is an action a recipient can take from a notification.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// Message is one notification intent.
type Message struct {
	Channel    Channel   `json:"channel"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body,omitempty"`
	Buttons    []Button  `json:"buttons,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Sender delivers messages to one destination (chat bot, web UI push, ...).
type Sender interface {
	// Name identifies the sender in logs.
	Name() string

	// Send delivers a single message. Errors are logged by the queue and do
	// not stop delivery to other senders.
	Send(ctx context.Context, msg *Message) error
}

// Queue is the in-process notification queue.
type Queue struct {
	mu      sync.Mutex
	pending []*Message
	senders []Sender
}

// NewQueue creates a queue delivering to the given senders.
func NewQueue(senders ...Sender) *Queue {
	return &Queue{senders: senders}
}

// Register adds a sender to the queue.
func (q *Queue) Register(s Sender) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders = append(q.senders, s)
}

// Enqueue records a notification intent. It never fails.
func (q *Queue) Enqueue(msg *Message) {
	if msg == nil {
		return
	}
	msg.EnqueuedAt = time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, msg)
}

// Pending returns the number of undelivered messages.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain delivers all pending messages to all senders and returns the number
// of messages processed. Sender errors are logged, never propagated: the
// queue is resilient by design.
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	senders := make([]Sender, len(q.senders))
	copy(senders, q.senders)
	q.mu.Unlock()

	for _, msg := range batch {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range senders {
			g.Go(func() error {
				if err := s.Send(gctx, msg); err != nil {
					log.Printf("notify: sender %q failed for %q: %v", s.Name(), msg.Subject, err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return len(batch)
}

// StartConsumer drains the queue on an interval until ctx is cancelled.
// A final drain on shutdown flushes whatever is still pending.
func (q *Queue) StartConsumer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				q.Drain(context.Background())
				return
			case <-ticker.C:
				q.Drain(ctx)
			}
		}
	}()
}

// LogSender writes notifications to the process log. It is the default
// sender when no chat or UI transport is configured.
type LogSender struct{}

// Name implements Sender.
func (LogSender) Name() string { return "log" }

// Send implements Sender.
func (LogSender) Send(_ context.Context, msg *Message) error {
	log.Printf("notify [%s]: %s", msg.Channel, msg.Subject)
	return nil
}
