package weave

// AsyncTask[T] is spec component C7's eager task: unlike Task[T] it
// starts running the moment it is constructed, and its underlying
// coroutine is reference-counted (spec §4.7 "Abandoned... handles may be
// cloned; the coroutine is destroyed once both the last handle is
// dropped and the coroutine reaches a terminal state") so several
// independent holders can each Await or Cancel it without racing each
// other's lifetime.
type AsyncTask[T any] struct {
	rec *CoroutineRecord
}

// NewAsyncTask constructs and immediately schedules fn on the pool
// resolved from kind, optionally as a child of parent's coroutine.
func NewAsyncTask[T any](parent *Ctx, kind PoolKind, fn func(ctx *Ctx) (T, error)) *AsyncTask[T] {
	rec := allocRecord(nil, resolvePool(parent, kind))
	rec.body = func(ctx *Ctx) {
		v, err := fn(ctx)
		rec.finish(v, err)
	}
	if parent != nil {
		rec.setOwner(parent.rec)
	}
	schedule(rec)
	return &AsyncTask[T]{rec: rec}
}

// Clone returns a second handle to the same coroutine, incrementing its
// reference count. Each handle must eventually be Released independently.
func (t *AsyncTask[T]) Clone() *AsyncTask[T] {
	t.rec.retain()
	return &AsyncTask[T]{rec: t.rec}
}

// Release drops this handle. Once every handle has been released and
// SetCancelAbandoned(true) was set, the coroutine is cancelled if it
// has not already completed (spec §4.7 Abandoned handling); the record
// itself is returned to the record pool only if the coroutine is
// already in a terminal status at that moment (see
// CoroutineRecord.release).
func (t *AsyncTask[T]) Release() { t.rec.release() }

// SetCancelAbandoned configures whether releasing the last handle while
// the task is still running should cancel it automatically.
func (t *AsyncTask[T]) SetCancelAbandoned(v bool) { t.rec.SetCancelAbandoned(v) }

// Cancel requests cancellation regardless of the handle's ref count.
func (t *AsyncTask[T]) Cancel() { t.rec.Cancel() }

// IsDone reports whether the task has produced a result.
func (t *AsyncTask[T]) IsDone() bool { return t.rec.IsDone() }

// Await suspends ctx's coroutine until the task completes.
func (t *AsyncTask[T]) Await(ctx *Ctx) (T, error) {
	if err := awaitDone(ctx, t.rec, KindTask); err != nil {
		var zero T
		return zero, err
	}
	return resultOf[T](t.rec)
}
