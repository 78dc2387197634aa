package api

import (
	"testing"
	"time"
)

func TestEvent_PayloadTime(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	occurred := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		payload map[string]any
		want    time.Time
	}{
		{"native time", map[string]any{"at": at}, at},
		{"rfc3339 string", map[string]any{"at": at.Format(time.RFC3339)}, at},
		{"unparseable string", map[string]any{"at": "yesterday-ish"}, occurred},
		{"missing key", map[string]any{}, occurred},
		{"wrong type", map[string]any{"at": 42}, occurred},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := Event{Type: EventMessageSent, Payload: tc.payload, OccurredAt: occurred}
			if got := evt.PayloadTime("at"); !got.Equal(tc.want) {
				t.Fatalf("PayloadTime = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvent_PayloadString(t *testing.T) {
	evt := Event{Payload: map[string]any{"id": "s1", "n": 3}}
	if got := evt.PayloadString("id"); got != "s1" {
		t.Fatalf("PayloadString(id) = %q", got)
	}
	if got := evt.PayloadString("n"); got != "" {
		t.Fatalf("PayloadString of non-string = %q, want empty", got)
	}
	if got := evt.PayloadString("missing"); got != "" {
		t.Fatalf("PayloadString(missing) = %q, want empty", got)
	}
}

func TestErrorClassification(t *testing.T) {
	until := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	sleep := NewSleepUntilError(until)
	if got, ok := SleepDeadline(sleep); !ok || !got.Equal(until) {
		t.Fatalf("SleepDeadline = %v, %v", got, ok)
	}
	if _, ok := IsShortCircuit(sleep); ok {
		t.Fatal("sleep error misread as short-circuit")
	}

	sc := NewShortCircuitError("request already accepted")
	if reason, ok := IsShortCircuit(sc); !ok || reason != "request already accepted" {
		t.Fatalf("IsShortCircuit = %q, %v", reason, ok)
	}

	cancel := NewCancelRunError("unknown lifecycle op")
	if reason, ok := IsCancelRun(cancel); !ok || reason != "unknown lifecycle op" {
		t.Fatalf("IsCancelRun = %q, %v", reason, ok)
	}
	if _, ok := IsCancelRun(sc); ok {
		t.Fatal("short-circuit misread as cancel")
	}
}
