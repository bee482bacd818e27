package examflow

import "time"

// DeadlineTimer reports the time left before a fixed deadline.
//
// Remaining time is always derived from duration - (now - start), never from a
// stored counter, so slow or skipped ticks cannot make it drift. Pausing
// freezes the comparison at the pause instant; resuming moves start forward by
// the paused span.
type DeadlineTimer struct {
	start    time.Time
	duration time.Duration
	pausedAt time.Time
	paused   bool
	fired    bool
}

// NewDeadlineTimer creates a timer that expires duration after start.
func NewDeadlineTimer(start time.Time, duration time.Duration) *DeadlineTimer {
	if duration < 0 {
		duration = 0
	}
	return &DeadlineTimer{start: start, duration: duration}
}

// Deadline returns the current effective deadline.
func (t *DeadlineTimer) Deadline() time.Time {
	return t.start.Add(t.duration)
}

// Remaining returns the time left at now, clamped at zero.
func (t *DeadlineTimer) Remaining(now time.Time) time.Duration {
	if t.fired {
		return 0
	}
	if t.paused {
		now = t.pausedAt
	}
	elapsed := now.Sub(t.start)
	if elapsed < 0 {
		elapsed = 0
	}
	left := t.duration - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// RemainingSeconds returns Remaining rounded up to whole seconds, the value a
// countdown shows. It reaches zero exactly when the timer is due to expire.
func (t *DeadlineTimer) RemainingSeconds(now time.Time) int64 {
	left := t.Remaining(now)
	secs := int64(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Tick recomputes the remaining time. expired is true exactly once, on the
// first tick at or after the deadline; later ticks report zero and false.
func (t *DeadlineTimer) Tick(now time.Time) (remaining time.Duration, expired bool) {
	if t.fired {
		return 0, false
	}
	remaining = t.Remaining(now)
	if t.paused || remaining > 0 {
		return remaining, false
	}
	t.fired = true
	return 0, true
}

// Pause freezes the countdown at now. No-op when already paused or expired.
func (t *DeadlineTimer) Pause(now time.Time) {
	if t.paused || t.fired {
		return
	}
	t.paused = true
	t.pausedAt = now
}

// Resume shifts the deadline forward by the time spent paused.
func (t *DeadlineTimer) Resume(now time.Time) {
	if !t.paused {
		return
	}
	if span := now.Sub(t.pausedAt); span > 0 {
		t.start = t.start.Add(span)
	}
	t.paused = false
	t.pausedAt = time.Time{}
}

// Paused reports whether the timer is paused.
func (t *DeadlineTimer) Paused() bool { return t.paused }

// Expired reports whether the expiry signal has fired.
func (t *DeadlineTimer) Expired() bool { return t.fired }

// WarningThresholds are the remaining-time marks at which the learner gets a
// "time is running out" notice.
var WarningThresholds = []time.Duration{10 * time.Minute, 5 * time.Minute, time.Minute}

// CrossedWarning reports the threshold crossed when remaining time moves from
// prev to cur, if any. Only the largest crossed threshold is returned.
func CrossedWarning(prev, cur time.Duration) (time.Duration, bool) {
	if cur <= 0 {
		return 0, false
	}
	for _, th := range WarningThresholds {
		if prev > th && cur <= th {
			return th, true
		}
	}
	return 0, false
}
