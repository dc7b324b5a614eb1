package weave

import (
	"sync"

	"github.com/nvlled/weave/atombits"
	"github.com/nvlled/weave/internal/queue"
)

// CountdownEvent is spec §4.4.1: a counter in [0, max] with a FIFO wait
// list. It backs both the public Event/CountdownEvent primitives and
// every CoroutineRecord's internal completion-event (spec §4.7).
type CountdownEvent struct {
	scope atombits.ScopeCounter
	mu    sync.Mutex
	count int64
	max   int64

	waiters *queue.FIFO[CoroutineRecord]
	proxies []func()
}

// NewCountdownEvent returns a countdown event starting at initial,
// capped at max (countUp past max is a no-op).
func NewCountdownEvent(initial, max int64) *CountdownEvent {
	return &CountdownEvent{count: initial, max: max, waiters: queue.New[CoroutineRecord]()}
}

func newCountdownEvent(initial int64) *CountdownEvent {
	return NewCountdownEvent(initial, 1<<62)
}

// Count returns the current count without blocking.
func (ce *CountdownEvent) Count() int64 {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return ce.count
}

func (ce *CountdownEvent) isZero() bool { return ce.Count() == 0 }

// countDown decrements the counter (no-op if already zero); on the
// 1->0 transition it wakes every queued coroutine and runs any
// registered proxy callbacks (spec §4.4.1).
func (ce *CountdownEvent) countDown() {
	ce.scope.Enter()
	defer ce.scope.Leave()

	ce.mu.Lock()
	if ce.count == 0 {
		ce.mu.Unlock()
		return
	}
	ce.count--
	var released []*CoroutineRecord
	var proxies []func()
	if ce.count == 0 {
		for {
			rec, ok := ce.waiters.Dequeue()
			if !ok {
				break
			}
			released = append(released, rec)
		}
		proxies, ce.proxies = ce.proxies, nil
	}
	ce.mu.Unlock()

	for _, rec := range released {
		schedule(rec)
	}
	for _, fn := range proxies {
		fn()
	}
}

// CountDown is the public, non-chaining entry point (spec §6 "Primitive
// operations"): safe to call from any goroutine, not only a coroutine.
func (ce *CountdownEvent) CountDown() { ce.countDown() }

// countUp increments the counter (no-op at max); returns true only on
// the 0->1 transition.
func (ce *CountdownEvent) countUp() bool {
	ce.scope.Enter()
	defer ce.scope.Leave()
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.count >= ce.max {
		return false
	}
	ce.count++
	return ce.count == 1
}

// CountUp is the public entry point.
func (ce *CountdownEvent) CountUp() bool { return ce.countUp() }

// enqueueProxy registers fn to run once the counter reaches zero,
// running it immediately if it already has. Used internally by
// CoroutineRecord.finish for the completion handshake, and by the
// public EnqueueProxy* methods below.
func (ce *CountdownEvent) enqueueProxy(fn func()) {
	ce.mu.Lock()
	if ce.count == 0 {
		ce.mu.Unlock()
		fn()
		return
	}
	ce.proxies = append(ce.proxies, fn)
	ce.mu.Unlock()
}

// EnqueueProxyCountdown arranges for target.CountDown() to run once ce
// reaches zero, realized as a tiny fire-and-forget coroutine per spec
// §4.4.1 ("realized by scheduling a tiny fire-and-forget coroutine that
// signals the target").
func (ce *CountdownEvent) EnqueueProxyCountdown(target *CountdownEvent) {
	ce.enqueueProxy(func() {
		StartSimpleTask(Current, func(ctx *Ctx) { target.CountDown() })
	})
}

// EnqueueProxySyncEvent arranges for target.Set() to run once ce reaches
// zero, bridging an async completion back to a blocking OS thread.
func (ce *CountdownEvent) EnqueueProxySyncEvent(target *ManualResetSyncEvent) {
	ce.enqueueProxy(func() { target.Set() })
}

// Close tears the countdown event down: every coroutine currently
// waiting observes a cancellation error instead of a clean zero-count
// release, and Close blocks until every in-flight countDown/countUp/
// Await call has exited, mirroring AsyncCountDownEvent's destructor
// (drain m_waitQueue, cancelling and scheduling each waiter, then
// m_asyncScope.waitTillEmpty()). Close does not itself force the count
// to zero, and it cancels only the waiters queued when it drains the
// wait list; an Await that enqueues after that drain stays queued.
func (ce *CountdownEvent) Close() {
	ce.mu.Lock()
	var released []*CoroutineRecord
	for {
		rec, ok := ce.waiters.Dequeue()
		if !ok {
			break
		}
		released = append(released, rec)
	}
	ce.mu.Unlock()
	for _, rec := range released {
		rec.cancel()
		schedule(rec)
	}
	ce.scope.WaitIdle()
}

// countdownAwaiter is the Awaiter implementation shared by
// CountdownEvent.Await and Event.Await (spec §4.3/§4.4.1-2).
type countdownAwaiter struct {
	baseAwaiter
	ce *CountdownEvent
}

func newCountdownAwaiter(ce *CountdownEvent, kind AwaiterKind) *countdownAwaiter {
	return &countdownAwaiter{baseAwaiter: baseAwaiter{kind: kind}, ce: ce}
}

func (a *countdownAwaiter) onReady(rec *CoroutineRecord) Readiness {
	a.rec = rec
	if a.ce.isZero() {
		return ShouldNotSuspend
	}
	return MaySuspend
}

func (a *countdownAwaiter) onSuspend(rec *CoroutineRecord) Readiness {
	a.rec = rec
	a.ce.scope.Enter()
	defer a.ce.scope.Leave()
	a.ce.mu.Lock()
	if a.ce.count == 0 {
		a.ce.mu.Unlock()
		return ShouldNotSuspend
	}
	a.ce.waiters.Enqueue(rec)
	a.setBlocked(true)
	a.ce.mu.Unlock()
	return MaySuspend
}

func (a *countdownAwaiter) onResume() error { return a.finishResume() }

// cancel detaches rec from ce's wait list (spec §4.5 step 4). Returns
// whether it actually removed rec — a false here can legitimately mean
// rec was already released concurrently (spec §9 open question on
// Remove's best-effort contract).
func (a *countdownAwaiter) cancel(rec *CoroutineRecord) bool {
	return a.ce.waiters.Remove(rec)
}

// Await suspends ctx's coroutine until the countdown reaches zero (spec
// §6 "Await expressions accept: ... a CountdownEvent").
func (ce *CountdownEvent) Await(ctx *Ctx) error {
	return await(ctx, newCountdownAwaiter(ce, KindEvent))
}

// Event is the binary specialization of CountdownEvent with max=1 (spec
// §4.4.2): Signal -> countDown (toward the signalled/zero state), Reset
// -> countUp (back to unsignalled).
type Event struct {
	ce *CountdownEvent
}

// NewEvent returns a manual-reset Event: Signal releases every waiter
// and Reset is required to return it to the unsignalled state, matching
// AsyncEvent in the original (async_event.hpp/.cpp) exposing only
// signal()/reset(), with no coroutine-facing auto-reset variant.
func NewEvent(signalled bool) *Event {
	initial := int64(1)
	if signalled {
		initial = 0
	}
	return &Event{ce: NewCountdownEvent(initial, 1)}
}

// Signal releases every coroutine currently awaiting the event.
func (e *Event) Signal() { e.ce.CountDown() }

// Reset returns the event to the unsignalled state.
func (e *Event) Reset() { e.ce.CountUp() }

// IsSignalled reports the current state without blocking.
func (e *Event) IsSignalled() bool { return e.ce.isZero() }

// Await suspends until the event is signalled.
func (e *Event) Await(ctx *Ctx) error { return e.ce.Await(ctx) }

// Close tears the event down, cancelling every coroutine currently
// awaiting it. AsyncEvent has no async scope of its own in the
// original (async_event.hpp) — it delegates entirely to its underlying
// AsyncCountDownEvent, so Close does the same here.
func (e *Event) Close() { e.ce.Close() }
