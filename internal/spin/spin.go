// Package spin implements the adaptive busy-wait helpers used by the
// scheduler's slow path before a worker parks (spec §4.6, component C1).
package spin

import (
	"runtime"
	"sync/atomic"
)

// Waiter tracks spin iterations so callers can escalate from a short
// busy-wait (step n of the first spinLimit steps yields n times) to a
// single runtime.Gosched per step, and finally to being told to stop
// spinning, without needing to carry state themselves.
type Waiter struct {
	count uint32
}

// ideally-calibrated-per-host spin/yield thresholds, mirroring the kind of
// fixed iteration counts the teacher's busy-wait loops use before falling
// back to blocking primitives.
const (
	spinLimit  = 10
	yieldLimit = 20
)

// Spin performs one escalating wait step. It returns true once the caller
// has spun enough that it should stop calling Spin and block instead.
func (w *Waiter) Spin() (exhausted bool) {
	n := atomic.AddUint32(&w.count, 1)
	switch {
	case n <= spinLimit:
		for i := uint32(0); i < n; i++ {
			procyield()
		}
		return false
	case n <= yieldLimit:
		runtime.Gosched()
		return false
	default:
		return true
	}
}

// Reset clears the escalation counter for reuse.
func (w *Waiter) Reset() { atomic.StoreUint32(&w.count, 0) }

// procyield issues a short busy-wait. runtime.Gosched is used in place of
// a CPU PAUSE instruction, which Go does not expose portably.
func procyield() { runtime.Gosched() }
