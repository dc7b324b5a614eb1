package weave

import "time"

// Ctx is the Invoker-equivalent handle passed to a running coroutine
// body (spec §3 "Awaiter... bound to its coroutine"), renamed from the
// teacher's Invoker/Control to reflect that it now drives the full
// three-phase suspension protocol instead of a single frame-advance.
type Ctx struct {
	rec *CoroutineRecord
}

// Coroutine returns the record backing this context, for primitives and
// task types that need to register it as an owner or awaiter.
func (c *Ctx) Coroutine() *CoroutineRecord { return c.rec }

// IsCancelled mirrors the teacher's Invoker.IsCanceled.
func (c *Ctx) IsCancelled() bool { return c.rec.IsCancelled() }

// Cancel cancels the running coroutine's own record. Mirrors the
// teacher's Invoker.Cancel delegating to script.Cancel.
func (c *Ctx) Cancel() { c.rec.cancel() }

// Yield suspends the coroutine until the scheduler resumes it, without
// registering on any primitive's wait list — spec §4.7's
// "yield_value stores the yielded value, transitions Running -> Yielded,
// then suspends". Unlike an await on a primitive, a Yield always
// re-enqueues onto the coroutine's own pool rather than waiting on any
// external release.
//
// Cancellation propagates like an ordinary call return (spec §7
// "Exceptions bubble through await expressions like ordinary call
// returns"): Yield returns a non-nil error instead of panicking, and
// callers are expected to check it the way they would any other Go
// error — the runtime only panics for genuine programming violations
// (spec §7.3), never for cancellation.
func (c *Ctx) Yield() error {
	r := c.rec
	r.setStatus(Yielded)
	r.setStatus(YieldedSuspended)
	r.parkedCh <- parkEvent{}
	schedule(r)
	<-r.resumeCh
	if r.IsCancelled() && KindYield.cancellable() {
		return newCancellationError(KindYield)
	}
	return nil
}

// Delay yields count times (spec's ThreadPool::yield-adjacent helper,
// mirrored from the teacher's Invoker.Delay), stopping early if
// cancelled.
func (c *Ctx) Delay(count int) error {
	for i := 0; i < count; i++ {
		if err := c.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// Sleep blocks by repeatedly yielding until the duration elapses,
// exactly like the teacher's Control.Sleep: time.Sleep is intentionally
// avoided so cancellation can interrupt promptly between yields.
func (c *Ctx) Sleep(d time.Duration) error {
	start := time.Now()
	for time.Since(start) < d {
		if err := c.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// await runs the three-phase protocol of spec §4.3 for a single
// suspension point, used by every primitive's Await method.
func await(c *Ctx, aw Awaiter) error {
	r := c.rec
	switch aw.onReady(r) {
	case ShouldNotSuspend:
		return aw.onResume()
	default:
		r.registerAwaiter(aw)
		switch aw.onSuspend(r) {
		case ShouldNotSuspend:
			r.unregisterAwaiter(aw)
		default:
			r.park()
			r.unregisterAwaiter(aw)
		}
		return aw.onResume()
	}
}
