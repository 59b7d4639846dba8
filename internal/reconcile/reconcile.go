// Package reconcile converts raw cumulative counter samples read from a
// FRITZ!Box into non-negative increments for an exported Prometheus counter.
//
// The device reports running totals, not increments, and its internal
// counters wrap at an unknown width. Reconciliation therefore keeps the last
// observed raw value per metric and exports the difference to the next
// sample, with a crude estimate for rounds in which the device counter
// wrapped.
package reconcile

// State holds the last raw sample observed for one counter metric. It is
// owned by exactly one counter and accessed from the single polling
// goroutine, so it needs no locking.
type State struct {
	LastRaw uint64
}

// Reconcile returns the increment to apply to the exported counter for a new
// raw sample, and whether the device counter appears to have wrapped.
//
// A raw value at or above the previous one is normal monotonic progress and
// yields the plain difference. A smaller raw value means the device counter
// wrapped or reset; the true increment is unknowable without the wrap width,
// so 2*newRaw is used as the expected value over a uniformly distributed
// wrap point. This is an intentional estimate, not a reconstruction.
//
// The state is always advanced to newRaw, so the next round reconciles
// against the latest observation even when this round's increment was
// estimated. A fresh State (LastRaw zero) reports the full raw value as the
// first increment, a one-time baseline inflation that is accepted because
// the true prior total is unknown.
func Reconcile(s *State, newRaw uint64) (inc uint64, wrapped bool) {
	if newRaw >= s.LastRaw {
		inc = newRaw - s.LastRaw
	} else {
		inc = newRaw * 2
		wrapped = true
	}
	s.LastRaw = newRaw
	return inc, wrapped
}
