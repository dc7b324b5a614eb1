package weave

import (
	"sync"

	"github.com/nvlled/weave/atombits"
	"github.com/nvlled/weave/internal/queue"
)

// Barrier is spec component C6's fixed-capacity N-party rendezvous: a
// generation of Parties() coroutines must all arrive before any of them
// proceeds, after which the barrier cycles to a fresh generation
// (modeled on java.util.concurrent.CyclicBarrier, which the teacher's
// own corpus has no direct analogue for — grounded instead on the
// countdown/mutex hybrid pattern already used in this package: a short
// sync.Mutex critical section around a handful of plain fields, plus the
// shared intrusive queue.FIFO for the wait list itself).
//
// Cancelling a party that is still waiting breaks the barrier for every
// other party in that same generation (spec §4.4.4): they all observe
// ErrBarrierBroken instead of proceeding, rather than the barrier simply
// waiting for one fewer party.
type Barrier struct {
	mu         sync.Mutex
	parties    int
	count      int
	generation int64
	broken     map[int64]bool
	closed     bool

	// scope gates Close against an Await/cancel call still mid-flight,
	// grounded on AsyncBarrier's m_asyncScope (async_scope.hpp).
	scope atombits.ScopeCounter

	waiters *queue.FIFO[CoroutineRecord]
}

// NewBarrier returns a barrier requiring parties arrivals per
// generation. parties must be >= 1.
func NewBarrier(parties int) *Barrier {
	return &Barrier{
		parties: parties,
		broken:  make(map[int64]bool),
		waiters: queue.New[CoroutineRecord](),
	}
}

// Parties returns the configured party count.
func (b *Barrier) Parties() int { return b.parties }

// Close tears the barrier down (spec §5 destruction discipline): every
// party currently waiting observes ErrBarrierBroken, and any Await
// called afterwards returns the same error immediately instead of
// blocking. Close returns once every in-flight Await/cancel call has
// exited, mirroring AsyncBarrier::~AsyncBarrier (cancel() then an
// async-scope drain). Idempotent.
func (b *Barrier) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.broken[b.generation] = true
	released := b.drainLocked()
	b.mu.Unlock()
	for _, r := range released {
		schedule(r)
	}
	b.scope.WaitIdle()
}

// Await suspends ctx's coroutine until every other party of the current
// generation has also called Await, then releases the whole generation
// together.
func (b *Barrier) Await(ctx *Ctx) error {
	return await(ctx, newBarrierAwaiter(b))
}

type barrierAwaiter struct {
	baseAwaiter
	b          *Barrier
	generation int64
}

func newBarrierAwaiter(b *Barrier) *barrierAwaiter {
	return &barrierAwaiter{baseAwaiter: baseAwaiter{kind: KindBarrier}, b: b}
}

// onReady does the entire arrival: incrementing the generation's count
// and, short of being the completing party, enqueueing rec in the same
// critical section as the count bump. Splitting the increment and the
// enqueue across onReady/onSuspend (as mutexAwaiter does, to re-check a
// value that can go stale) would leave a window where this generation
// could complete and reset before rec is actually enqueued to receive
// the release, so here both happen atomically under one lock instead.
func (a *barrierAwaiter) onReady(rec *CoroutineRecord) Readiness {
	a.rec = rec
	b := a.b
	b.scope.Enter()
	defer b.scope.Leave()

	b.mu.Lock()
	a.generation = b.generation
	if b.closed {
		b.mu.Unlock()
		return ShouldNotSuspend
	}
	b.count++
	if b.count == b.parties {
		released := b.drainLocked()
		b.mu.Unlock()
		for _, r := range released {
			schedule(r)
		}
		return ShouldNotSuspend
	}
	b.waiters.Enqueue(rec)
	a.setBlocked(true)
	b.mu.Unlock()
	return MaySuspend
}

func (a *barrierAwaiter) onSuspend(rec *CoroutineRecord) Readiness {
	a.rec = rec
	return MaySuspend
}

// drainLocked dequeues every waiter of the current generation and
// advances to the next one. Callers must hold b.mu.
func (b *Barrier) drainLocked() []*CoroutineRecord {
	var released []*CoroutineRecord
	for {
		r, ok := b.waiters.Dequeue()
		if !ok {
			break
		}
		released = append(released, r)
	}
	b.count = 0
	b.generation++
	return released
}

func (a *barrierAwaiter) onResume() error {
	b := a.b
	b.mu.Lock()
	// b.closed covers every arrival after Close, regardless of which
	// generation number it lands in once drainLocked has advanced past
	// the generation Close() itself marked broken.
	broken := b.closed || b.broken[a.generation]
	b.mu.Unlock()
	if broken {
		return ErrBarrierBroken
	}
	return a.finishResume()
}

// cancel implements the broken-barrier propagation: removing rec from
// the wait list also breaks the generation for everyone else still
// enqueued in it, per spec §4.4.4.
func (a *barrierAwaiter) cancel(rec *CoroutineRecord) bool {
	b := a.b
	b.scope.Enter()
	defer b.scope.Leave()

	b.mu.Lock()
	removed := b.waiters.Remove(rec)
	var released []*CoroutineRecord
	if removed {
		released = b.drainLocked()
		b.broken[a.generation] = true
	}
	b.mu.Unlock()
	for _, r := range released {
		schedule(r)
	}
	return removed
}
