package adapter

import (
	"context"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancellation")
	}
}

func TestSleep_ZeroReturnsContextState(t *testing.T) {
	if err := Sleep(t.Context(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}

func TestStamp(t *testing.T) {
	ev := &StreamCompletedEvent{SessionID: "s"}
	ev.Stamp(time.Date(2026, 10, 16, 9, 30, 0, 0, time.FixedZone("X", 3600)))

	if ev.EventType != EventTypeStreamCompleted {
		t.Errorf("EventType = %q", ev.EventType)
	}
	if ev.Timestamp != "2026-10-16T08:30:00Z" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
}
