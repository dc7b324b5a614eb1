package weave

// SyncTask[T] is spec component C7's blocking-gettable task: it behaves
// like AsyncTask[T] (eager, ref-counted) but additionally lets a plain
// OS thread that holds no coroutine context at all block on its result
// via Get, by proxying the record's done event to a ManualResetSyncEvent
// (spec §4.4.1's sync/async bridge, via
// CountdownEvent.EnqueueProxySyncEvent).
type SyncTask[T any] struct {
	async *AsyncTask[T]
	done  *ManualResetSyncEvent
}

// NewSyncTask constructs and immediately schedules fn, arranging for
// Get to unblock once it finishes.
func NewSyncTask[T any](parent *Ctx, kind PoolKind, fn func(ctx *Ctx) (T, error)) *SyncTask[T] {
	async := NewAsyncTask[T](parent, kind, fn)
	evt := NewManualResetSyncEvent(false)
	async.rec.done.ce.EnqueueProxySyncEvent(evt)
	return &SyncTask[T]{async: async, done: evt}
}

// Get blocks the calling OS thread (which need not be running inside
// any coroutine) until the task completes, then returns its result.
func (t *SyncTask[T]) Get() (T, error) {
	t.done.Wait()
	return resultOf[T](t.async.rec)
}

// Await suspends ctx's coroutine the same way AsyncTask.Await does, for
// callers that do hold a coroutine context and would rather not block
// their worker thread outright.
func (t *SyncTask[T]) Await(ctx *Ctx) (T, error) { return t.async.Await(ctx) }

// Cancel requests cancellation of the underlying coroutine.
func (t *SyncTask[T]) Cancel() { t.async.Cancel() }

// IsDone reports whether the task has produced a result.
func (t *SyncTask[T]) IsDone() bool { return t.async.IsDone() }
