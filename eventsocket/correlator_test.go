package eventsocket

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCorrelatorFIFOOrdering(t *testing.T) {
	c := newCorrelator()
	p1, p2, p3 := newPendingRequest(), newPendingRequest(), newPendingRequest()
	c.pushCommand(p1)
	c.pushCommand(p2)
	c.pushCommand(p3)

	if got := c.popCommand(); got != p1 {
		t.Error("first pop did not return p1")
	}
	if got := c.popCommand(); got != p2 {
		t.Error("second pop did not return p2")
	}
	if got := c.popCommand(); got != p3 {
		t.Error("third pop did not return p3")
	}
	if got := c.popCommand(); got != nil {
		t.Error("pop on empty queue should return nil")
	}
}

func TestCorrelatorCommandAndAPIAreIndependentQueues(t *testing.T) {
	c := newCorrelator()
	cmd := newPendingRequest()
	api := newPendingRequest()
	c.pushCommand(cmd)
	c.pushAPI(api)

	if c.popAPI() != api {
		t.Error("popAPI returned the wrong queue's request")
	}
	if c.popCommand() != cmd {
		t.Error("popCommand returned the wrong queue's request")
	}
}

func TestCorrelatorFailAll(t *testing.T) {
	c := newCorrelator()
	p1, p2 := newPendingRequest(), newPendingRequest()
	c.pushCommand(p1)
	c.pushAPI(p2)

	c.failAll(ErrConnectionLost)

	if !errors.Is(p1.err, ErrConnectionLost) {
		t.Errorf("p1.err = %v, want ErrConnectionLost", p1.err)
	}
	if !errors.Is(p2.err, ErrConnectionLost) {
		t.Errorf("p2.err = %v, want ErrConnectionLost", p2.err)
	}
	if c.popCommand() != nil || c.popAPI() != nil {
		t.Error("queues should be empty after failAll")
	}
}

func TestPendingRequestWaitRespectsContext(t *testing.T) {
	p := newPendingRequest()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wait err = %v, want context.DeadlineExceeded", err)
	}
}

func TestPendingRequestWaitCompletes(t *testing.T) {
	p := newPendingRequest()
	msg := NewMessage()
	msg.Set("Reply-Text", "+OK")
	go p.complete(msg)

	got, err := p.wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got.Get("Reply-Text") != "+OK" {
		t.Errorf("Reply-Text = %q, want %q", got.Get("Reply-Text"), "+OK")
	}
}
