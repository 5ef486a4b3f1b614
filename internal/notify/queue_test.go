package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// captureSender records every message it receives.
type captureSender struct {
	mu   sync.Mutex
	got  []*Message
	fail bool
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("delivery down")
	}
	c.got = append(c.got, msg)
	return nil
}

func (c *captureSender) messages() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Message, len(c.got))
	copy(out, c.got)
	return out
}

func TestEnqueueAndDrain(t *testing.T) {
	sender := &captureSender{}
	q := NewQueue(sender)

	q.Enqueue(&Message{Channel: ChannelInfo, Subject: "routed to tech-design"})
	q.Enqueue(&Message{
		Channel: ChannelActionable,
		Subject: "needs routing",
		Buttons: []Button{{Label: "Route", Action: "route", Target: "feat-001"}},
	})

	if q.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", q.Pending())
	}

	n := q.Drain(context.Background())
	if n != 2 {
		t.Errorf("Drain() = %d, want 2", n)
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() after drain = %d, want 0", q.Pending())
	}

	got := sender.messages()
	if len(got) != 2 {
		t.Fatalf("delivered = %d messages, want 2", len(got))
	}
	if got[1].Channel != ChannelActionable || len(got[1].Buttons) != 1 {
		t.Errorf("second message = %+v", got[1])
	}
	if got[0].EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not stamped")
	}
}

func TestSenderFailureIsSwallowed(t *testing.T) {
	broken := &captureSender{fail: true}
	working := &captureSender{}
	q := NewQueue(broken, working)

	q.Enqueue(&Message{Channel: ChannelInfo, Subject: "approved"})

	// Drain must not fail and must still deliver to the working sender.
	n := q.Drain(context.Background())
	if n != 1 {
		t.Errorf("Drain() = %d, want 1", n)
	}
	if len(working.messages()) != 1 {
		t.Errorf("working sender got %d messages, want 1", len(working.messages()))
	}
}

func TestEnqueueNilIsNoOp(t *testing.T) {
	q := NewQueue()
	q.Enqueue(nil)
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", q.Pending())
	}
}
