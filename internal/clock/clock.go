// Package clock provides the engine's monotonic timestamp source (C2).
package clock

import "time"

// epoch anchors every timestamp returned by Now to a single process-wide
// zero point. time.Since against a fixed time.Time value never observes
// wall-clock adjustments (NTP steps, timezone changes), which is what makes
// these timestamps safe to subtract pairwise within one process.
var epoch = time.Now()

// Now returns nanoseconds elapsed since the process-wide epoch, from a
// monotonic clock source. Two Now() calls on the same peer can be safely
// subtracted (t4-t1 locally, t3-t2 on the peer); Now() values from two
// different peer processes must never be subtracted against each other,
// since the two epochs are unrelated.
func Now() int64 {
	return int64(time.Since(epoch))
}
