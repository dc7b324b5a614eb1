package weave

// WhenAll suspends ctx's coroutine until every task has completed,
// returning their results in the same order as tasks (or the first
// error observed, spec's Supplemented Features: composition over
// AsyncTask via CountdownEvent rather than a dedicated awaiter — one
// countdown party per task, decremented by a SimpleTask fanned out per
// task so each Await runs on its own coroutine instead of serially).
func WhenAll[T any](ctx *Ctx, tasks ...*AsyncTask[T]) ([]T, error) {
	n := len(tasks)
	if n == 0 {
		return nil, nil
	}
	results := make([]T, n)
	errs := make([]error, n)
	ce := newCountdownEvent(int64(n))
	pool := ctx.Coroutine().Pool
	for i, t := range tasks {
		i, t := i, t
		StartSimpleTask(pool, func(childCtx *Ctx) {
			v, err := t.Await(childCtx)
			results[i] = v
			errs[i] = err
			ce.CountDown()
		})
	}
	if err := ce.Await(ctx); err != nil {
		return results, err
	}
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// WhenAny suspends ctx's coroutine until the first of tasks completes
// (successfully or not), returning that result. The remaining tasks are
// left running; callers that want them stopped should Cancel them
// explicitly.
func WhenAny[T any](ctx *Ctx, tasks ...*AsyncTask[T]) (T, error) {
	first := NewValue[T]()
	pool := ctx.Coroutine().Pool
	for _, t := range tasks {
		t := t
		StartSimpleTask(pool, func(childCtx *Ctx) {
			v, err := t.Await(childCtx)
			if err != nil {
				first.SetError(err)
			} else {
				first.Set(v)
			}
		})
	}
	return first.Await(ctx)
}
