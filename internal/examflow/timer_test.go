package examflow

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDeadlineTimer_RemainingFromDeadline(t *testing.T) {
	timer := NewDeadlineTimer(t0, 60*time.Second)

	if got := timer.Remaining(t0.Add(15 * time.Second)); got != 45*time.Second {
		t.Fatalf("expected 45s remaining, got %v", got)
	}
	// A skipped tick does not matter: the value comes from the clock.
	if got := timer.Remaining(t0.Add(59500 * time.Millisecond)); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms remaining, got %v", got)
	}
	if got := timer.RemainingSeconds(t0.Add(59500 * time.Millisecond)); got != 1 {
		t.Fatalf("expected countdown to show 1s, got %d", got)
	}
	if got := timer.Remaining(t0.Add(2 * time.Minute)); got != 0 {
		t.Fatalf("expected remaining clamped at 0, got %v", got)
	}
}

func TestDeadlineTimer_FiresOnce(t *testing.T) {
	timer := NewDeadlineTimer(t0, 3*time.Second)

	fired := 0
	for s := 0; s <= 10; s++ {
		if _, expired := timer.Tick(t0.Add(time.Duration(s) * time.Second)); expired {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("expected exactly one expiry, got %d", fired)
	}
	if !timer.Expired() {
		t.Fatalf("expected timer to report expired")
	}
}

func TestDeadlineTimer_MonotonicNonNegative(t *testing.T) {
	timer := NewDeadlineTimer(t0, 5*time.Second)

	prev := timer.Remaining(t0)
	for ms := 0; ms <= 8000; ms += 370 {
		cur, _ := timer.Tick(t0.Add(time.Duration(ms) * time.Millisecond))
		if cur < 0 {
			t.Fatalf("remaining went negative at %dms: %v", ms, cur)
		}
		if cur > prev {
			t.Fatalf("remaining increased at %dms: %v -> %v", ms, prev, cur)
		}
		prev = cur
	}
}

func TestDeadlineTimer_PauseResumePreservesRemaining(t *testing.T) {
	timer := NewDeadlineTimer(t0, 60*time.Second)

	timer.Pause(t0.Add(20 * time.Second))
	if _, expired := timer.Tick(t0.Add(5 * time.Minute)); expired {
		t.Fatalf("paused timer must not expire")
	}
	if got := timer.Remaining(t0.Add(5 * time.Minute)); got != 40*time.Second {
		t.Fatalf("expected 40s frozen while paused, got %v", got)
	}

	resumeAt := t0.Add(5 * time.Minute)
	timer.Resume(resumeAt)
	if got := timer.Remaining(resumeAt); got != 40*time.Second {
		t.Fatalf("expected 40s after resume, got %v", got)
	}
	if want := resumeAt.Add(40 * time.Second); !timer.Deadline().Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, timer.Deadline())
	}
	if _, expired := timer.Tick(resumeAt.Add(40 * time.Second)); !expired {
		t.Fatalf("expected expiry at the shifted deadline")
	}
}

func TestDeadlineTimer_NegativeDuration(t *testing.T) {
	timer := NewDeadlineTimer(t0, -time.Second)
	if _, expired := timer.Tick(t0); !expired {
		t.Fatalf("expected immediate expiry for a section with no time left")
	}
}

func TestCrossedWarning(t *testing.T) {
	tests := []struct {
		prev, cur time.Duration
		want      time.Duration
		ok        bool
	}{
		{11 * time.Minute, 10 * time.Minute, 10 * time.Minute, true},
		{10 * time.Minute, 9 * time.Minute, 0, false},
		{301 * time.Second, 299 * time.Second, 5 * time.Minute, true},
		{61 * time.Second, 60 * time.Second, time.Minute, true},
		{20 * time.Minute, 30 * time.Second, 10 * time.Minute, true},
		{30 * time.Second, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := CrossedWarning(tt.prev, tt.cur)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CrossedWarning(%v, %v) = %v, %v; want %v, %v", tt.prev, tt.cur, got, ok, tt.want, tt.ok)
		}
	}
}
