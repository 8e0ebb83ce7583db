package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alone132405/panel-bot-sub001/internal/broadcast"
)

// Options tunes the queue's timing. Zero values take the defaults.
type Options struct {
	// GatePollInterval is how often the session gate is re-checked while a
	// remote desktop session is attached. Default 5s.
	GatePollInterval time.Duration
	// RunTimeout is the hard wall-clock bound on one driver run. Default 120s.
	RunTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.GatePollInterval <= 0 {
		o.GatePollInterval = 5 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 120 * time.Second
	}
	return o
}

type job struct {
	identifier string
	pub        broadcast.Publisher
}

// Queue is the process-wide FIFO of automation jobs. Construct one at startup
// and inject it into the HTTP layer; there are no package globals.
//
// Invariants: at most one pending job per identifier; strict FIFO by first
// enqueue; at most one run in flight; the running job stays in the sequence
// (and in status snapshots) until its run finishes.
type Queue struct {
	driver WindowAutomationDriver
	gate   SessionGate
	pub    broadcast.Publisher // queue_update sink; may be nil
	opts   Options

	mu      sync.Mutex
	jobs    []*job
	running bool

	wake chan struct{}
}

func NewQueue(driver WindowAutomationDriver, gate SessionGate, pub broadcast.Publisher, opts Options) *Queue {
	return &Queue{
		driver: driver,
		gate:   gate,
		pub:    pub,
		opts:   opts.withDefaults(),
		wake:   make(chan struct{}, 1),
	}
}

// Snapshot is the non-blocking queue status answer.
type Snapshot struct {
	Running           bool     `json:"running"`
	QueueLength       int      `json:"queueLength"`
	QueuedIdentifiers []string `json:"queuedIdentifiers"`
	CurrentIdentifier string   `json:"currentIdentifier,omitempty"`
}

// Enqueue adds a job for the identifier, deduplicating against jobs that have
// not started yet: a pending sibling absorbs the call (it will pick up the
// latest settings when it runs) and only its status channel is refreshed to
// the newest handle. Returns the job's 1-based queue position.
//
// Enqueue never blocks and never fails because of the broadcaster; the status
// broadcast is best-effort.
func (q *Queue) Enqueue(identifier string, ch broadcast.Publisher) (int, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return 0, errors.New("empty identifier")
	}
	q.mu.Lock()
	pos := 0
	for i, j := range q.jobs {
		if i == 0 && q.running {
			// already started; a fresh job for the same identifier is allowed
			continue
		}
		if j.identifier == id {
			j.pub = ch
			pos = i + 1
			break
		}
	}
	if pos == 0 {
		q.jobs = append(q.jobs, &job{identifier: id, pub: ch})
		pos = len(q.jobs)
	}
	q.mu.Unlock()

	q.publishQueueUpdate(context.Background())
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return pos, nil
}

// Status never blocks and never fails.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() Snapshot {
	ids := make([]string, len(q.jobs))
	for i, j := range q.jobs {
		ids[i] = j.identifier
	}
	s := Snapshot{Running: q.running, QueueLength: len(q.jobs), QueuedIdentifiers: ids}
	if q.running && len(q.jobs) > 0 {
		s.CurrentIdentifier = q.jobs[0].identifier
	}
	return s
}

// Run is the single worker loop. It drains the queue whenever woken and
// returns when ctx is cancelled. Run must be called exactly once.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
		q.drain(ctx)
	}
}

// drain runs head jobs until the queue is empty or ctx is cancelled. The head
// job is left in place while it runs so status snapshots keep reporting it;
// completion pops it and immediately continues with the next.
func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.running || len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		q.running = true
		j := q.jobs[0]
		q.mu.Unlock()

		q.runJob(ctx, j)

		q.mu.Lock()
		q.jobs = q.jobs[1:]
		q.running = false
		q.mu.Unlock()
		q.publishQueueUpdate(ctx)

		if ctx.Err() != nil {
			return
		}
	}
}

// runJob executes the full per-job protocol. Driver errors are broadcast, not
// returned: a failed run must never take the worker loop down.
func (q *Queue) runJob(ctx context.Context, j *job) {
	// Gate wait: no timeout, deliberately. Only a human disconnecting the
	// remote session can unblock this, and the waiting status makes the stall
	// visible on the dashboard.
	for !q.gate.ConsoleAttached() {
		q.emit(ctx, j, StatusWaiting, "a remote desktop session is attached; it must be disconnected before automation can run")
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.opts.GatePollInterval):
		}
	}

	q.emit(ctx, j, StatusProcessing, "applying settings changes to the bot")
	err := q.runDriver(ctx, j.identifier)
	switch {
	case err == nil:
		q.emit(ctx, j, StatusCompleted, "settings reloaded successfully")
	case ctx.Err() != nil:
		// shutting down; no outcome to report
	default:
		slog.Error("automation run failed", "identifier", j.identifier, "error", err)
		q.emit(ctx, j, StatusError, err.Error())
	}
}

func (q *Queue) runDriver(ctx context.Context, identifier string) error {
	rctx, cancel := context.WithTimeout(ctx, q.opts.RunTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- q.driver.Run(rctx, identifier) }()
	select {
	case err := <-done:
		return err
	case <-rctx.Done():
		// The driver goroutine keeps running until it observes rctx; drivers
		// check ctx between script steps so this is bounded by one step.
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("automation run exceeded %s: %w", q.opts.RunTimeout, rctx.Err())
		}
		return rctx.Err()
	}
}

func (q *Queue) emit(ctx context.Context, j *job, status, message string) {
	if j.pub == nil {
		return
	}
	j.pub.Publish(ctx, broadcast.Event{
		Type:    broadcast.TypeAutomationStatus,
		Channel: j.identifier,
		Data: map[string]any{
			"identifier": j.identifier,
			"status":     status,
			"message":    message,
			"timestamp":  time.Now().UnixMilli(),
		},
	})
}

func (q *Queue) publishQueueUpdate(ctx context.Context) {
	if q.pub == nil {
		return
	}
	s := q.Status()
	q.pub.Publish(ctx, broadcast.Event{
		Type:    broadcast.TypeQueueUpdate,
		Channel: broadcast.QueueChannel,
		Data: map[string]any{
			"running":           s.Running,
			"queueLength":       s.QueueLength,
			"queuedIdentifiers": s.QueuedIdentifiers,
			"currentIdentifier": s.CurrentIdentifier,
		},
	})
}
