// Package autopilot serializes desktop-automation runs against the bot's GUI.
//
// The bot reloads an account's settings only when driven through its own
// window (search the account, open it, Functions -> Reload Settings). That
// interaction owns the machine's mouse, keyboard and window focus, so runs are
// strictly single-flight: a FIFO queue executes at most one at a time, waits
// for any human remote-desktop session to detach first, and reports progress
// over the broadcast hub.
package autopilot

import (
	"context"
	"errors"
	"fmt"
)

// Per-job statuses emitted on the account's broadcast channel.
const (
	StatusWaiting    = "waiting"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrTargetNotFound means no visible window of the bot application exists.
var ErrTargetNotFound = errors.New("target application window not found")

// AutomationError reports a failed step of the interaction script.
type AutomationError struct {
	Step   string
	Detail string
	Err    error
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("automation failed at step %q", e.Step)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AutomationError) Unwrap() error { return e.Err }

// WindowAutomationDriver runs the fixed interaction script against the bot
// window for one account identifier. Run takes exclusive control of the
// interactive session for its duration and must honor ctx between steps.
type WindowAutomationDriver interface {
	Run(ctx context.Context, identifier string) error
}

// SessionGate classifies the local interactive session. ConsoleAttached
// returns false while a remote-desktop session is attached (a human may be
// using the screen); inspection failures report true (fail-open) so a broken
// probe cannot deadlock the queue.
type SessionGate interface {
	ConsoleAttached() bool
}
