package weave

import (
	"sync"
	"sync/atomic"

	"github.com/nvlled/weave/atombits"
	"github.com/nvlled/weave/internal/queue"
	"github.com/nvlled/weave/internal/spin"
)

// Mutex is spec component C6's FIFO-fair mutual exclusion primitive:
// at most one coroutine holds it at a time, and waiters are released in
// arrival order. Ownership and the wait list are guarded by an internal
// sync.Mutex rather than made fully lock-free, matching the hybrid
// already used by CountdownEvent: the wait list itself is still the
// shared intrusive queue.FIFO, but mutations to "who holds it" and "who
// is queued" happen inside one short critical section so Unlock can
// atomically hand off ownership to exactly one waiter.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	owner   *CoroutineRecord
	waiters *queue.FIFO[CoroutineRecord]

	// cancelled mirrors async_mutex.hpp's m_cancelled: once set, Lock
	// never suspends again (every waiter and future arrival observes
	// cancellation instead), grounded on async_mutex.cpp's unlock()/
	// lock() both short-circuiting on isCancelled().
	cancelled atomic.Bool

	// scope gates Close against a Lock/Unlock call still mid-flight,
	// grounded on AsyncMutex's m_asyncScope (async_scope.hpp).
	scope atombits.ScopeCounter
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{waiters: queue.New[CoroutineRecord]()}
}

// TryLock attempts to acquire the mutex without suspending, returning
// false if it is already held.
func (m *Mutex) TryLock(ctx *Ctx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	m.owner = ctx.rec
	return true
}

// IsLocked reports whether the mutex is currently held, without
// blocking.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// IsCancelled reports whether Cancel (or Close) has torn this mutex
// down, per async_mutex.hpp's isCancelled().
func (m *Mutex) IsCancelled() bool { return m.cancelled.Load() }

// Cancel breaks the mutex for every coroutine currently waiting and for
// every future Lock call (spec §5 destruction discipline), mirroring
// AsyncMutex::cancel(): every queued waiter is marked cancelled and
// rescheduled so its Lock returns a cancellation error instead of
// acquiring the mutex. Idempotent.
func (m *Mutex) Cancel() {
	if !m.cancelled.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	var released []*CoroutineRecord
	for {
		r, ok := m.waiters.Dequeue()
		if !ok {
			break
		}
		released = append(released, r)
	}
	m.mu.Unlock()
	for _, r := range released {
		r.cancel()
		schedule(r)
	}
}

// Close tears the mutex down: it cancels it (see Cancel), then blocks
// until the current owner releases it and every in-flight Lock/Unlock
// call has exited, mirroring AsyncMutex::~AsyncMutex (cancel(), spin
// until m_ownerCoroutine clears, then wait the async scope empty).
func (m *Mutex) Close() {
	m.Cancel()
	var w spin.Waiter
	for m.IsLocked() {
		if w.Spin() {
			w.Reset()
		}
	}
	m.scope.WaitIdle()
}

// Lock suspends ctx's coroutine until the mutex is acquired (spec §6
// "Await expressions accept: ... a Mutex").
func (m *Mutex) Lock(ctx *Ctx) error {
	return await(ctx, newMutexAwaiter(m))
}

// Unlock releases the mutex, handing it directly to the longest-waiting
// coroutine (if any) via chained execution rather than the owning
// goroutine dropping it into a queue and waking a worker (spec §4.6
// symmetric transfer).
//
// Unlocking a mutex the calling coroutine does not own is a no-op unless
// the mutex has been cancelled, in which case the caller's own record is
// marked cancelled too — grounded on async_mutex.cpp's unlock(): "if
// (ownerCoroutine != awaiterCoroutine) { if (isCancelled())
// awaiterCoroutine->setCancelled(); return; }". A non-owner calling
// Unlock is not by itself a programming violation the way an illegal
// status transition is (spec §7.3); it only ever arises from a
// cancelled mutex racing with a caller that already lost the lock.
//
// Unlock must be called synchronously from within the locking
// coroutine's own body (the ordinary Lock/defer-Unlock shape) rather
// than stashed and invoked later from outside it: chained execution
// depends on the releasing coroutine's own worker still being the one
// driving it at the moment of release.
func (m *Mutex) Unlock(ctx *Ctx) {
	m.scope.Enter()
	defer m.scope.Leave()

	m.mu.Lock()
	if !m.locked || m.owner != ctx.rec {
		m.mu.Unlock()
		if m.IsCancelled() {
			ctx.rec.cancel()
		}
		return
	}

	if m.IsCancelled() {
		m.locked = false
		m.owner = nil
		var released []*CoroutineRecord
		for {
			r, ok := m.waiters.Dequeue()
			if !ok {
				break
			}
			released = append(released, r)
		}
		m.mu.Unlock()
		ctx.rec.cancel()
		for _, r := range released {
			r.cancel()
			schedule(r)
		}
		return
	}

	next, ok := m.waiters.Dequeue()
	if !ok {
		m.locked = false
		m.owner = nil
		m.mu.Unlock()
		return
	}
	m.owner = next
	m.mu.Unlock()
	chainOrSchedule(ctx.rec, next)
}

// mutexAwaiter is the Awaiter implementation behind Mutex.Lock.
type mutexAwaiter struct {
	baseAwaiter
	m *Mutex
}

func newMutexAwaiter(m *Mutex) *mutexAwaiter {
	return &mutexAwaiter{baseAwaiter: baseAwaiter{kind: KindMutex}, m: m}
}

func (a *mutexAwaiter) onReady(rec *CoroutineRecord) Readiness {
	a.rec = rec
	if a.m.IsCancelled() {
		rec.cancel()
		return ShouldNotSuspend
	}
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if !a.m.locked {
		a.m.locked = true
		a.m.owner = rec
		return ShouldNotSuspend
	}
	return MaySuspend
}

func (a *mutexAwaiter) onSuspend(rec *CoroutineRecord) Readiness {
	a.rec = rec
	a.m.scope.Enter()
	defer a.m.scope.Leave()

	if a.m.IsCancelled() {
		rec.cancel()
		return ShouldNotSuspend
	}
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	if !a.m.locked {
		a.m.locked = true
		a.m.owner = rec
		return ShouldNotSuspend
	}
	if a.m.IsCancelled() {
		rec.cancel()
		return ShouldNotSuspend
	}
	a.m.waiters.Enqueue(rec)
	a.setBlocked(true)
	return MaySuspend
}

func (a *mutexAwaiter) onResume() error { return a.finishResume() }

func (a *mutexAwaiter) cancel(rec *CoroutineRecord) bool {
	return a.m.waiters.Remove(rec)
}
