package autopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alone132405/panel-bot-sub001/internal/broadcast"
)

type stubDriver struct {
	mu    sync.Mutex
	runs  []string
	errs  map[string]error
	gate  chan struct{} // when non-nil, Run blocks until a receive fires
	block bool
}

func (d *stubDriver) Run(ctx context.Context, identifier string) error {
	d.mu.Lock()
	d.runs = append(d.runs, identifier)
	err := d.errs[identifier]
	d.mu.Unlock()
	if d.block {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *stubDriver) ranOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.runs...)
}

type stubGate struct {
	mu     sync.Mutex
	remote int // report remote-attached for this many calls
}

func (g *stubGate) ConsoleAttached() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remote > 0 {
		g.remote--
		return false
	}
	return true
}

type recorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *recorder) Publish(_ context.Context, ev broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) statuses(identifier string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type == broadcast.TypeAutomationStatus && ev.Channel == identifier {
			out = append(out, ev.Data["status"].(string))
		}
	}
	return out
}

func (r *recorder) lastMessage(identifier string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if ev.Type == broadcast.TypeAutomationStatus && ev.Channel == identifier {
			return ev.Data["message"].(string)
		}
	}
	return ""
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

func fastOpts() Options {
	return Options{GatePollInterval: 5 * time.Millisecond, RunTimeout: time.Second}
}

func TestEnqueueDedupPending(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(&stubDriver{}, &stubGate{}, rec, fastOpts())
	// no worker loop: both jobs stay pending
	p1, err := q.Enqueue("A", rec)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	p2, err := q.Enqueue("A", rec)
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if p1 != 1 || p2 != 1 {
		t.Fatalf("expected both calls to report position 1, got %d and %d", p1, p2)
	}
	st := q.Status()
	if st.QueueLength != 1 || st.QueuedIdentifiers[0] != "A" {
		t.Fatalf("expected single pending job for A, got %+v", st)
	}
}

func TestEnqueueEmptyIdentifier(t *testing.T) {
	q := NewQueue(&stubDriver{}, &stubGate{}, nil, fastOpts())
	if _, err := q.Enqueue("  ", nil); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}

func TestFIFOAndVisibility(t *testing.T) {
	rec := &recorder{}
	drv := &stubDriver{block: true, gate: make(chan struct{})}
	q := NewQueue(drv, &stubGate{}, rec, fastOpts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	if _, err := q.Enqueue("A", rec); err != nil {
		t.Fatalf("enqueue A: %v", err)
	}
	if _, err := q.Enqueue("B", rec); err != nil {
		t.Fatalf("enqueue B: %v", err)
	}

	// A starts; while it runs it is still the visible head
	waitUntil(t, time.Second, func() bool { return q.Status().CurrentIdentifier == "A" })
	st := q.Status()
	if !st.Running || st.QueueLength != 2 {
		t.Fatalf("expected running queue of 2 with A current, got %+v", st)
	}

	drv.gate <- struct{}{} // finish A
	// B starts without an external trigger; A is gone from the snapshot
	waitUntil(t, time.Second, func() bool { return q.Status().CurrentIdentifier == "B" })
	st = q.Status()
	if st.QueueLength != 1 || st.QueuedIdentifiers[0] != "B" {
		t.Fatalf("expected queue [B] while B runs, got %+v", st)
	}

	drv.gate <- struct{}{} // finish B
	waitUntil(t, time.Second, func() bool {
		s := q.Status()
		return !s.Running && s.QueueLength == 0
	})

	if got := drv.ranOrder(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("expected FIFO run order [A B], got %v", got)
	}
	for _, id := range []string{"A", "B"} {
		want := []string{StatusProcessing, StatusCompleted}
		got := rec.statuses(id)
		if len(got) != len(want) {
			t.Fatalf("statuses for %s: got %v want %v", id, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("statuses for %s: got %v want %v", id, got, want)
			}
		}
	}
}

func TestReenqueueWhileRunning(t *testing.T) {
	rec := &recorder{}
	drv := &stubDriver{block: true, gate: make(chan struct{})}
	q := NewQueue(drv, &stubGate{}, rec, fastOpts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("A", rec)
	waitUntil(t, time.Second, func() bool { return q.Status().Running })

	// the running job no longer blocks a fresh request for the same identifier
	if _, err := q.Enqueue("A", rec); err != nil {
		t.Fatalf("re-enqueue while running: %v", err)
	}
	if st := q.Status(); st.QueueLength != 2 {
		t.Fatalf("expected a second queued job for A, got %+v", st)
	}
	drv.gate <- struct{}{}
	drv.gate <- struct{}{}
	waitUntil(t, time.Second, func() bool { return q.Status().QueueLength == 0 })
	if got := drv.ranOrder(); len(got) != 2 {
		t.Fatalf("expected two runs for A, got %v", got)
	}
}

func TestGateWaitBroadcastsWaiting(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(&stubDriver{}, &stubGate{remote: 2}, rec, fastOpts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("A", rec)
	waitUntil(t, time.Second, func() bool {
		sts := rec.statuses("A")
		return len(sts) > 0 && sts[len(sts)-1] == StatusCompleted
	})
	sts := rec.statuses("A")
	want := []string{StatusWaiting, StatusWaiting, StatusProcessing, StatusCompleted}
	if len(sts) != len(want) {
		t.Fatalf("statuses: got %v want %v", sts, want)
	}
	for i := range want {
		if sts[i] != want[i] {
			t.Fatalf("statuses: got %v want %v", sts, want)
		}
	}
}

func TestDriverFailureContinuesQueue(t *testing.T) {
	rec := &recorder{}
	drv := &stubDriver{errs: map[string]error{
		"A": fmt.Errorf("%w: no visible window matching %q", ErrTargetNotFound, "GameBot"),
	}}
	q := NewQueue(drv, &stubGate{}, rec, fastOpts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("A", rec)
	q.Enqueue("B", rec)
	waitUntil(t, time.Second, func() bool {
		sts := rec.statuses("B")
		return len(sts) > 0 && sts[len(sts)-1] == StatusCompleted
	})

	sts := rec.statuses("A")
	if len(sts) == 0 || sts[len(sts)-1] != StatusError {
		t.Fatalf("expected error status for A, got %v", sts)
	}
	if msg := rec.lastMessage("A"); !strings.Contains(msg, "GameBot") {
		t.Fatalf("error message should identify the missing application, got %q", msg)
	}
	if got := drv.ranOrder(); len(got) != 2 || got[1] != "B" {
		t.Fatalf("queue should proceed to B after A fails, got %v", got)
	}
}

func TestRunTimeout(t *testing.T) {
	rec := &recorder{}
	drv := &stubDriver{block: true, gate: make(chan struct{})} // never released
	q := NewQueue(drv, &stubGate{}, rec, Options{GatePollInterval: 5 * time.Millisecond, RunTimeout: 30 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue("A", rec)
	waitUntil(t, time.Second, func() bool {
		sts := rec.statuses("A")
		return len(sts) > 0 && sts[len(sts)-1] == StatusError
	})
	if msg := rec.lastMessage("A"); !strings.Contains(msg, "exceeded") {
		t.Fatalf("expected timeout-classified error, got %q", msg)
	}
	waitUntil(t, time.Second, func() bool {
		s := q.Status()
		return !s.Running && s.QueueLength == 0
	})
}

func TestAutomationErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &AutomationError{Step: "popup", Detail: "x", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected Unwrap to expose the inner error")
	}
	if !strings.Contains(err.Error(), "popup") {
		t.Fatalf("error text should name the step, got %q", err.Error())
	}
}
