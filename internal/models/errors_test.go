package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "configuration", err: ErrConfiguration, want: "configuration"},
		{name: "wrapped provider", err: fmt.Errorf("%w: %w", ErrProvider, errors.New("timeout")), want: "provider"},
		{name: "replay wins over exchange", err: fmt.Errorf("%w: %w", ErrExchange, ErrReplayedCode), want: "replayed_code"},
		{name: "delivery", err: fmt.Errorf("send: %w", ErrDelivery), want: "delivery"},
		{name: "unknown", err: errors.New("boom"), want: "unexpected"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestUserMessageNeverEmptyForErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrConfiguration, ErrNotAuthenticated, ErrExchange, ErrReplayedCode, ErrProvider, ErrNotImplemented, ErrUnsupportedProvider, ErrDelivery, ErrInvalidRange, ErrInvalidSchedule, errors.New("boom")} {
		if UserMessage(err) == "" {
			t.Fatalf("expected a user message for %v", err)
		}
	}
	if UserMessage(nil) != "" {
		t.Fatalf("expected empty message for nil error")
	}
}

func TestEventDuration(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2024-05-06T09:00:00Z")
	ev := Event{StartTime: start, EndTime: start.Add(90 * time.Minute)}
	if got := ev.Duration(); got != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", got)
	}

	inverted := Event{StartTime: start, EndTime: start.Add(-time.Second)}
	if got := inverted.Duration(); got != 0 {
		t.Fatalf("expected negative durations to clamp to zero, got %v", got)
	}
}
