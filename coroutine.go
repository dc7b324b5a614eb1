package weave

import (
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/nvlled/mud"
	"github.com/nvlled/weave/internal/queue"
)

// PoolKind selects which of the runtime's two pools a coroutine is
// affine to (spec §6). Current binds at construction time to the
// creator's pool, or Default if the coroutine is constructed outside
// any pool worker.
type PoolKind int

const (
	Current PoolKind = iota
	Default
	Background
)

func (k PoolKind) String() string {
	switch k {
	case Default:
		return "Default"
	case Background:
		return "Background"
	default:
		return "Current"
	}
}

// Body is a coroutine's entry point. It runs on a dedicated goroutine
// (spec §9: "implementations that lack native coroutines implement each
// task body as a state machine... reified as the Coroutine record") and
// suspends by calling methods on the *Ctx it is given.
type Body func(ctx *Ctx)

// parkEvent is sent from a coroutine's dedicated goroutine back to
// whichever worker is driving it, replacing the teacher's single
// bidirectional katana channel with two unidirectional channels: one
// carries "proceed" signals into the coroutine, the other carries
// "I've suspended" / "I'm done" signals back out.
type parkEvent struct {
	done bool // body returned/panicked; no further resume is valid
}

// CoroutineRecord is the runtime's descriptor for a suspended
// computation (spec §3, component C4). It is non-movable and
// non-copyable by convention (always handled via *CoroutineRecord).
type CoroutineRecord struct {
	queue.Link[CoroutineRecord]

	id   int64
	Pool PoolKind

	status          statusWord
	cancelled       atomic.Bool
	cancelOnAbandon atomic.Bool

	owner atomic.Pointer[CoroutineRecord]
	refs  atomic.Int32

	// chained holds a same-pool coroutine a primitive's release path has
	// asked the currently-driving worker to resume inline next, instead
	// of enqueueing it (spec §4.6 chained execution / symmetric
	// transfer). Set via chainOrSchedule, consumed by takeChained.
	chained atomic.Pointer[CoroutineRecord]

	completion *CountdownEvent
	awaiters   *queue.FIFO[Awaiter]

	body Body
	ctx  *Ctx

	// done is signalled once finish() stores a result, independent of the
	// owner/child completion bookkeeping above: it is what Task/AsyncTask/
	// SyncTask/SimpleTask await to observe "this coroutine has a result",
	// reusing the same CountdownEvent-backed Event machinery every other
	// primitive uses instead of a bespoke one-shot channel.
	done *Event

	resumeCh chan struct{}
	parkedCh chan parkEvent

	result any
	err    error
	mu     sync.Mutex // guards result/err
}

var coroutineIDGen atomic.Int64

var coroutinePool = mud.NewPool()

func init() {
	mud.PreAlloc(coroutinePool, newRawRecord, 8)
}

func newRawRecord() *CoroutineRecord {
	return &CoroutineRecord{
		resumeCh: make(chan struct{}),
		parkedCh: make(chan parkEvent, 1),
	}
}

// allocRecord pulls a (possibly reused) record from the pool, following
// the teacher's mud-backed allocCoroutine/freeCoroutine in pool.go — here
// repurposed to pool CoroutineRecords instead of *Control, since
// SimpleTasks (spec §4.7) churn through short-lived records at a high
// rate bridging sync/async boundaries.
func allocRecord(body Body, pool PoolKind) *CoroutineRecord {
	rec := mud.Alloc(coroutinePool, newRawRecord)
	rec.id = coroutineIDGen.Add(1)
	rec.Pool = pool
	rec.body = body
	rec.status.Store(NotStarted)
	rec.cancelled.Store(false)
	rec.cancelOnAbandon.Store(false)
	rec.owner.Store(nil)
	rec.refs.Store(1)
	rec.completion = newCountdownEvent(0)
	rec.awaiters = queue.New[Awaiter]()
	rec.err = nil
	rec.result = nil
	rec.ctx = &Ctx{rec: rec}
	rec.done = NewEvent(false)
	return rec
}

func freeRecord(rec *CoroutineRecord) {
	mud.Free(coroutinePool, rec)
}

// ID returns the coroutine's debug identifier.
func (r *CoroutineRecord) ID() int64 { return r.id }

// Status returns the current state-machine value, mainly for logging and
// tests; user code should prefer IsDone/IsCancelled.
func (r *CoroutineRecord) Status() string { return r.statusString() }

// IsCancelled reports the cancellation flag (spec §3).
func (r *CoroutineRecord) IsCancelled() bool { return r.cancelled.Load() }

// IsDone reports whether the coroutine has reached any terminal status.
func (r *CoroutineRecord) IsDone() bool {
	switch r.status.Load() {
	case Completed, ReturnedCompleted, Abandoned, AbandonedCompleted,
		AbandonedFinalSuspended, AbandonedYieldedSuspended, CompletedFinalSuspended:
		return true
	default:
		return false
	}
}

func (r *CoroutineRecord) setOwner(parent *CoroutineRecord) {
	r.owner.Store(parent)
	if parent != nil {
		parent.completion.countUp()
	}
}

func (r *CoroutineRecord) signalOwnerDone() {
	if parent := r.owner.Load(); parent != nil {
		parent.completion.countDown()
	}
}

// registerAwaiter adds aw to this coroutine's in-flight awaiter list
// (spec §4.3: "if not Initial/Final/Yield, the awaiter adds itself to
// the coroutine's awaiter list"), used by cancel() to walk and detach
// every awaiter the coroutine may currently be blocked on (spec §4.5).
func (r *CoroutineRecord) registerAwaiter(aw Awaiter) {
	r.awaiters.Enqueue(aw)
}

func (r *CoroutineRecord) unregisterAwaiter(aw Awaiter) {
	r.awaiters.Remove(aw)
}

// takeChained consumes any pending chained-execution target set by a
// primitive this coroutine released during its last execution slice.
func (r *CoroutineRecord) takeChained() *CoroutineRecord {
	return r.chained.Swap(nil)
}

// chainOrSchedule is used by Mutex.Unlock's hand-off to request chained
// execution when possible (the event, countdown and barrier release
// paths call schedule directly): if from is the coroutine currently executing and
// target shares its pool, the driving worker will resume target inline
// next (spec §4.6); cross-pool releases always fall back to an ordinary
// schedule, since "cross-pool hops always enqueue" (spec §5).
func chainOrSchedule(from *CoroutineRecord, target *CoroutineRecord) {
	if from != nil && target != nil && target.Pool == from.Pool && from.chained.CompareAndSwap(nil, target) {
		return
	}
	schedule(target)
}

// park transitions Running -> Suspended, tells the driving worker this
// coroutine has suspended, and blocks the coroutine's own goroutine
// until a resumer sends on resumeCh. This is the Go-native stand-in for
// suspending a stackful coroutine frame: instead of the runtime saving
// and restoring a stack, the frame's own goroutine simply blocks.
func (r *CoroutineRecord) park() {
	r.setStatus(Suspended)
	r.parkedCh <- parkEvent{}
	<-r.resumeCh
}

// finish runs the completion handshake once the body function returns
// or panics (spec §4.7): Running -> Returned, then Returned -> Completed
// once the completion-event (counting owned children) reaches zero, or
// Returned -> FinalSuspended if children are still draining, followed by
// FinalSuspended -> CompletedFinalSuspended once they have drained.
func (r *CoroutineRecord) finish(result any, err error) {
	r.mu.Lock()
	r.result, r.err = result, err
	r.mu.Unlock()

	r.setStatus(Returned)
	r.signalOwnerDone()
	r.done.Signal()

	if r.completion.isZero() {
		r.setStatus(Completed)
	} else {
		r.setStatus(FinalSuspended)
		r.completion.enqueueProxy(func() {
			r.setStatus(CompletedFinalSuspended)
		})
	}
	r.parkedCh <- parkEvent{done: true}
}

// activeAwaiterKinds returns the distinct AwaiterKinds currently
// registered on r, for debug logging around cancellation. A coroutine
// has at most one awaiter registered at a time (await unregisters it on
// resume, and WhenAll awaits a single CountdownEvent rather than each
// child), so the snapshot-then-dedupe is cheap; slices.Contains is the same call shape the teacher's sliceSet
// used for its child lists, now deduping scheduler diagnostics instead.
func (r *CoroutineRecord) activeAwaiterKinds() []AwaiterKind {
	var kinds []AwaiterKind
	for _, aw := range r.awaiters.Snapshot() {
		k := aw.Kind()
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Cancel is the public entry point for requesting cancellation of rec
// from outside any coroutine (spec §4.5), used by task handles that
// only hold a *CoroutineRecord and not a *Ctx.
func (r *CoroutineRecord) Cancel() { r.cancel() }

// cancel implements the cancellation procedure of spec §4.5. It may be
// called from any goroutine, any number of times (idempotent, P5).
func (r *CoroutineRecord) cancel() {
	if !r.cancelled.CompareAndSwap(false, true) {
		return // already cancelled; flag alone is enough (P5)
	}
	log().Debug().Int64("coroutine", r.id).Msg("cancel requested")

	if r.status.Load() != Suspended || r.awaiters.Empty() {
		return // will be observed at next suspension/resumption (I4)
	}
	if !r.tryCAS(Suspended, PauseOnRunning) {
		return // lost race: coroutine already resumed elsewhere
	}

	if kinds := r.activeAwaiterKinds(); len(kinds) > 0 {
		log().Debug().Int64("coroutine", r.id).Any("awaiters", kinds).
			Msg("walking in-flight awaiters for cancellation")
	}

	for {
		aw, ok := r.awaiters.Dequeue()
		if !ok {
			break
		}
		if aw.MaybeBlocked() {
			aw.cancel(r)
		}
		if r.status.Load() == Paused {
			// coroutine self-unblocked concurrently with our walk.
			break
		}
	}

	prev := r.status.Load()
	if prev == Paused {
		r.tryCAS(Paused, Resumed)
	} else {
		r.tryCAS(PauseOnRunning, Resumed)
	}
	schedule(r)
}

// SetCancelAbandoned configures whether dropping the last task handle
// referencing this coroutine should cancel it automatically (spec §4.7,
// §7: "Abandoned ... tasks with cancelAbandoned=true have their cancel
// triggered automatically on handle drop").
func (r *CoroutineRecord) SetCancelAbandoned(v bool) { r.cancelOnAbandon.Store(v) }

func (r *CoroutineRecord) retain() { r.refs.Add(1) }

func (r *CoroutineRecord) release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if r.cancelOnAbandon.Load() {
		r.cancel()
	}
	// The coroutine may still be live (running to completion without
	// cancellation, per spec §4.7). Returning the record to the pool here
	// would race a still running goroutine, so only records whose status
	// is NotStarted/terminal at this moment are freed. Neither finish()
	// nor cancel() frees a record, so one released while still live is
	// never returned to the pool and is left to the garbage collector.
	switch r.status.Load() {
	case NotStarted, Completed, Abandoned, AbandonedCompleted:
		freeRecord(r)
	}
}
