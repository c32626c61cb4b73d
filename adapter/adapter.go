// Package adapter defines the notification boundary for finished streams.
//
// Adapters publish one stream_completed notification per stream session to
// a downstream system. The session engine owns adapter use; callers provide
// configuration only.
package adapter

import (
	"context"
	"time"
)

// EventTypeStreamCompleted is the only event type published.
const EventTypeStreamCompleted = "stream_completed"

// StreamCompletedEvent is the payload published when a stream session ends,
// whatever its terminal state.
type StreamCompletedEvent struct {
	ContractVersion string `json:"contract_version" msgpack:"contract_version"`
	EventType       string `json:"event_type" msgpack:"event_type"` // always "stream_completed"
	SessionID       string `json:"session_id" msgpack:"session_id"`
	Outcome         string `json:"outcome" msgpack:"outcome"` // completed, aborted, failed
	KnowledgeBase   string `json:"knowledge_base,omitempty" msgpack:"knowledge_base,omitempty"`
	MessageCount    int    `json:"message_count" msgpack:"message_count"`
	ImageCount      int    `json:"image_count" msgpack:"image_count"`
	EventCount      int    `json:"event_count" msgpack:"event_count"`
	Error           string `json:"error,omitempty" msgpack:"error,omitempty"`
	Timestamp       string `json:"timestamp" msgpack:"timestamp"` // RFC 3339, UTC
	DurationMs      int64  `json:"duration_ms" msgpack:"duration_ms"`
}

// Stamp fills the event type and timestamp.
func (e *StreamCompletedEvent) Stamp(now time.Time) {
	e.EventType = EventTypeStreamCompleted
	e.Timestamp = now.UTC().Format(time.RFC3339)
}

// Adapter publishes stream completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *StreamCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the wait before retry attempt i (i >= 1):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	if i < 1 {
		return 0
	}
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
