package weave

import "github.com/nvlled/weave/internal/queue"

// AwaiterKind tags the kind of suspension point an Awaiter represents,
// spec §3 "Awaiter" and §4.3.
type AwaiterKind int

const (
	KindInitial AwaiterKind = iota
	KindFinal
	KindYield
	KindTask
	KindMutex
	KindEvent
	KindValue
	KindBarrier
	KindThreadPool
)

func (k AwaiterKind) String() string {
	switch k {
	case KindInitial:
		return "Initial"
	case KindFinal:
		return "Final"
	case KindYield:
		return "Yield"
	case KindTask:
		return "Task"
	case KindMutex:
		return "Mutex"
	case KindEvent:
		return "Event"
	case KindValue:
		return "Value"
	case KindBarrier:
		return "Barrier"
	case KindThreadPool:
		return "ThreadPool"
	default:
		return "Unknown"
	}
}

// cancellable reports whether a coroutine observing its own cancelled
// flag while resuming through an awaiter of this kind should actually
// raise CancellationError (spec I4: "unless the awaiter is the Initial
// or Final awaiter").
func (k AwaiterKind) cancellable() bool {
	return k != KindInitial && k != KindFinal
}

// Readiness is the tri-state result of onReady/onSuspend (spec §4.3).
type Readiness int

const (
	// ShouldNotSuspend means the primitive already resolved
	// synchronously; the awaiter must not park the coroutine.
	ShouldNotSuspend Readiness = iota
	// ShouldSuspend means the primitive must enqueue the coroutine and
	// suspension is unavoidable (cross-pool hop, or chained-execution
	// budget exhausted).
	ShouldSuspend
	// MaySuspend means the primitive may proceed with its own
	// suspension path, potentially releasing the coroutine again via
	// chained execution.
	MaySuspend
)

// Awaiter is the three-phase suspension protocol of spec §4.3. Every
// concrete awaiter (mutexAwaiter, eventAwaiter, ...) embeds baseAwaiter
// to get list membership and the maybeBlocked bookkeeping, and
// implements onReady/onSuspend/onResume/cancel itself.
type Awaiter interface {
	queue.Node[Awaiter]

	Kind() AwaiterKind
	// MaybeBlocked reports whether this awaiter may currently be parked
	// on a wait structure and so is a candidate for the cancellation
	// walk of spec §4.5 step 4.
	MaybeBlocked() bool

	onReady(rec *CoroutineRecord) Readiness
	onSuspend(rec *CoroutineRecord) Readiness
	onResume() error

	// cancel is dispatched by the owning coroutine's cancellation walk
	// (spec §4.5 step 4). It must detach the coroutine from whatever
	// wait structure it is enqueued on (the walk itself reschedules the
	// coroutine once it finishes), returning true iff it actually removed
	// the coroutine (false if it had already been released concurrently).
	cancel(rec *CoroutineRecord) bool
}

// baseAwaiter is embedded by every concrete awaiter to satisfy the
// queue.Node[Awaiter] and MaybeBlocked/Kind parts of the Awaiter
// interface, following the teacher's pattern of a common embedded
// struct (Control) carrying the bookkeeping shared by every coroutine
// operation.
type baseAwaiter struct {
	queue.Link[Awaiter]
	kind    AwaiterKind
	blocked bool
	rec     *CoroutineRecord
}

func (b *baseAwaiter) Kind() AwaiterKind  { return b.kind }
func (b *baseAwaiter) MaybeBlocked() bool { return b.blocked }
func (b *baseAwaiter) setBlocked(v bool)  { b.blocked = v }

// finishResume is the common onResume tail every concrete awaiter calls:
// clear the blocked flag and, per I4, surface cancellation unless this
// kind is immune (Initial/Final). If a forced shutdown is in progress
// (spec §5 ShutdownImmediately) shutdown cancellation is raised even for
// an otherwise-immune kind (spec §7.1 ShutdownCancellation).
func (b *baseAwaiter) finishResume() error {
	b.setBlocked(false)
	rec := b.rec
	if rec == nil {
		return nil
	}
	if isForcingShutdown(rec.Pool) {
		return newShutdownError(b.kind)
	}
	if rec.IsCancelled() && b.kind.cancellable() {
		return newCancellationError(b.kind)
	}
	return nil
}
