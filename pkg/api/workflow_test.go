package api

import (
	"testing"
	"time"
)

func TestContext_CloneIsolatesWrites(t *testing.T) {
	orig := Context{"a": 1, "b": "x"}
	clone := orig.Clone()
	clone["a"] = 2
	clone["c"] = true

	if got := orig.Int("a"); got != 1 {
		t.Fatalf("original mutated: a = %d, want 1", got)
	}
	if _, ok := orig["c"]; ok {
		t.Fatal("original gained key written to the clone")
	}
}

func TestContext_CloneOfNil(t *testing.T) {
	var c Context
	clone := c.Clone()
	if clone == nil {
		t.Fatal("Clone of nil context must be writable, got nil")
	}
	clone["k"] = "v"
}

func TestContext_Merge(t *testing.T) {
	c := Context{"a": 1, "b": "keep"}
	c.Merge(Context{"a": 2, "c": "new"})

	if got := c.Int("a"); got != 2 {
		t.Fatalf("a = %d, want 2 (merged value wins)", got)
	}
	if got := c.String("b"); got != "keep" {
		t.Fatalf("b = %q, want %q", got, "keep")
	}
	if got := c.String("c"); got != "new" {
		t.Fatalf("c = %q, want %q", got, "new")
	}
}

func TestContext_TypedAccessors(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Context{
		"s":   "hello",
		"i":   7,
		"i64": int64(8),
		"f":   9.0,
		"t":   at,
	}

	if got := c.String("s"); got != "hello" {
		t.Fatalf("String = %q", got)
	}
	if got := c.String("missing"); got != "" {
		t.Fatalf("String(missing) = %q, want empty", got)
	}
	// Decoded payloads may carry any of the common numeric types.
	for key, want := range map[string]int{"i": 7, "i64": 8, "f": 9} {
		if got := c.Int(key); got != want {
			t.Fatalf("Int(%q) = %d, want %d", key, got, want)
		}
	}
	if got := c.Time("t"); !got.Equal(at) {
		t.Fatalf("Time = %v, want %v", got, at)
	}
	if got := c.Time("s"); !got.IsZero() {
		t.Fatalf("Time of non-time value = %v, want zero", got)
	}
}

func TestRetryPolicy_DelayDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseBackoff: 30 * time.Second, MaxBackoff: time.Hour}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{7, 32 * time.Minute},
		{8, time.Hour},
		{20, time.Hour},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryPolicy_DelayEdges(t *testing.T) {
	uncapped := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second}
	if got := uncapped.Delay(5); got != 16*time.Second {
		t.Fatalf("uncapped Delay(5) = %v, want 16s", got)
	}

	immediate := RetryPolicy{MaxAttempts: 5}
	if got := immediate.Delay(3); got != 0 {
		t.Fatalf("immediate Delay(3) = %v, want 0", got)
	}

	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}
	if got := p.Delay(0); got != time.Second {
		t.Fatalf("Delay(0) = %v, want base", got)
	}
}
