// Package broadcast delivers live status events to dashboard clients.
//
// Events flow through an in-process Hub feeding SSE subscribers; when redis is
// configured the same events are also PUBLISHed for external consumers.
// Publishing is best-effort everywhere: a slow or dead subscriber never blocks
// the publisher.
package broadcast

import "context"

// Well-known event types.
const (
	TypeQueueUpdate      = "queue_update"
	TypeAutomationStatus = "automation_status"
	TypeSettingsChanged  = "settings_changed"
)

// QueueChannel is the queue-wide channel; per-account events use the account
// identifier as the channel name.
const QueueChannel = "queue"

type Event struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data"`
}

// Publisher accepts events for delivery. Implementations must not block on
// slow consumers and must swallow (log) delivery errors.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}
