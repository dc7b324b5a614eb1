package weave

import "sync/atomic"

// Task[T] is spec component C7's lazy task: a coroutine that is
// constructed but does not begin running until the first Await (spec
// §4.7 "Task ... starts running on first Await; AsyncTask ... starts
// running immediately"). Internally it is just a CoroutineRecord whose
// NotStarted->Running transition is deferred until ensureStarted is
// first called.
type Task[T any] struct {
	rec     *CoroutineRecord
	started boolOnce
}

// boolOnce is a tiny CAS-guarded latch, used here instead of sync.Once
// since it needs to report whether THIS call won the race (to decide
// whether to call schedule), not merely block until some call finishes.
type boolOnce struct{ done atomic.Bool }

func (o *boolOnce) tryFire() bool { return o.done.CompareAndSwap(false, true) }

// NewTask constructs a lazy task running fn on the pool resolved from
// kind (Current resolves against parent, which may be nil outside any
// coroutine, spec §6 resolvePool semantics). fn's coroutine becomes a
// child of parent's coroutine when parent is non-nil, so the parent's
// FinalSuspended/Completed transition waits for it (spec §4.7).
func NewTask[T any](parent *Ctx, kind PoolKind, fn func(ctx *Ctx) (T, error)) *Task[T] {
	rec := allocRecord(nil, resolvePool(parent, kind))
	rec.body = func(ctx *Ctx) {
		v, err := fn(ctx)
		rec.finish(v, err)
	}
	if parent != nil {
		rec.setOwner(parent.rec)
	}
	return &Task[T]{rec: rec}
}

func (t *Task[T]) ensureStarted() {
	if t.started.tryFire() {
		schedule(t.rec)
	}
}

// Await starts the task if it has not run yet, then suspends ctx's
// coroutine until it completes.
func (t *Task[T]) Await(ctx *Ctx) (T, error) {
	t.ensureStarted()
	if err := awaitDone(ctx, t.rec, KindTask); err != nil {
		var zero T
		return zero, err
	}
	return resultOf[T](t.rec)
}

// Cancel requests cancellation of the underlying coroutine. If it has
// not started yet, only the cancelled flag is set; the body observes it
// at its first suspension point once it runs (I4).
func (t *Task[T]) Cancel() { t.rec.Cancel() }

// IsDone reports whether the task has produced a result.
func (t *Task[T]) IsDone() bool { return t.rec.IsDone() }

// awaitDone is the shared suspension point behind Task/AsyncTask/
// SyncTask.Await: it reuses the CountdownEvent machinery backing the
// record's done Event directly (rather than going through Event.Await,
// which always tags KindEvent) so each task family can report its own
// AwaiterKind for diagnostics.
func awaitDone(ctx *Ctx, rec *CoroutineRecord, kind AwaiterKind) error {
	return await(ctx, newCountdownAwaiter(rec.done.ce, kind))
}

// resultOf reads back a finished coroutine's stored result as T. Called
// only after awaitDone has returned nil, so result is guaranteed set.
func resultOf[T any](rec *CoroutineRecord) (T, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var zero T
	if rec.err != nil {
		return zero, rec.err
	}
	v, _ := rec.result.(T)
	return v, nil
}
