package weave

// StartSimpleTask fires off body as a bare fire-and-forget coroutine
// (spec component C7's SimpleTask): nothing observes its result, and
// the caller gets back the raw CoroutineRecord only in case it wants to
// Cancel it later. kind's Current resolves against Default rather than
// any calling coroutine's pool, since SimpleTask is the one task family
// routinely started from plain goroutines with no *Ctx at hand (e.g. a
// CountdownEvent proxy callback, see countdown.go
// EnqueueProxyCountdown) — callers inside a coroutine that want
// same-pool affinity should pass the pool kind explicitly instead of
// Current.
func StartSimpleTask(kind PoolKind, body func(ctx *Ctx)) *CoroutineRecord {
	rec := allocRecord(nil, resolvePool(nil, kind))
	rec.body = func(ctx *Ctx) {
		body(ctx)
		rec.finish(nil, nil)
	}
	rec.SetCancelAbandoned(false)
	schedule(rec)
	return rec
}
