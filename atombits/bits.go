// Package atombits provides small atomic bit-flag and scope-counting
// helpers shared by the coroutine state machine and the async
// primitives. Adapted from the teacher's coarse bit-flag state word into
// a retry-safe CAS loop, plus a ScopeCounter used by every primitive's
// "async scope" (spec §4.4, §5: destructors spin until no coroutine is
// mid-call).
package atombits

import (
	"sync/atomic"

	"github.com/nvlled/weave/internal/spin"
)

type T = atomic.Uint32

// IsSet reports whether any bit in flag is set in bits.
func IsSet(bits *T, flag uint32) bool {
	return bits.Load()&flag != 0
}

// Set atomically ORs flag into bits, retrying across concurrent writers.
func Set(bits *T, flag uint32) {
	for {
		value := bits.Load()
		if bits.CompareAndSwap(value, value|flag) {
			return
		}
	}
}

// Unset atomically clears flag from bits, retrying across concurrent
// writers.
func Unset(bits *T, flag uint32) {
	for {
		value := bits.Load()
		if bits.CompareAndSwap(value, value&^flag) {
			return
		}
	}
}

// ScopeCounter is the "async scope" entry counter every primitive embeds:
// API methods Enter() on entry and Leave() on exit, and a destructor
// spins on Idle() before tearing down, so an in-flight caller never
// observes a half-destroyed primitive.
type ScopeCounter struct {
	n atomic.Int64
}

// Enter records entry into a scope-guarded API call.
func (s *ScopeCounter) Enter() { s.n.Add(1) }

// Leave records exit from a scope-guarded API call.
func (s *ScopeCounter) Leave() { s.n.Add(-1) }

// Idle reports whether no call is currently mid-flight.
func (s *ScopeCounter) Idle() bool { return s.n.Load() == 0 }

// WaitIdle spins until Idle, for a primitive's teardown path (spec §5:
// "destructors spin until no coroutine is mid-call") to block until
// every Enter/Leave-guarded call in flight has finished.
func (s *ScopeCounter) WaitIdle() {
	var w spin.Waiter
	for !s.Idle() {
		if w.Spin() {
			w.Reset()
		}
	}
}
