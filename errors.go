package weave

import "errors"

// ErrCancelled is raised at an awaiter's onResume when the coroutine's
// cancelled flag is observed set (spec §7.1), mirroring the teacher's
// single ErrCancelled sentinel. Unlike the teacher, which panics with
// this value directly and lets the coroutine's own recover() swallow it,
// weave wraps it in CancellationError so the originating kind survives
// for diagnostics, while errors.Is(err, ErrCancelled) still holds.
var ErrCancelled = errors.New("weave: coroutine cancelled")

// ErrShutdown is the ShutdownCancellation sentinel of spec §7.1: raised
// during ShutdownImmediately even on awaiters that would otherwise be
// immune to ordinary cancellation (Initial/Final).
var ErrShutdown = errors.New("weave: pool shutdown")

// ErrAbandoned marks a result observed after a task's owning handle was
// dropped without ever being awaited (spec §4.7 AbandonTask handling).
// No code path in this package returns it.
var ErrAbandoned = errors.New("weave: task abandoned")

// ErrBarrierBroken is returned to every still-waiting party when one
// party of the same generation is cancelled (spec §4.4.4: cancelling a
// barrier wait breaks it for the whole cohort rather than just removing
// the cancelled party), mirroring java.util.concurrent's
// BrokenBarrierException.
var ErrBarrierBroken = errors.New("weave: barrier broken by a cancelled party")

// CancellationError is the concrete error type stored in a coroutine's
// result slot and returned from Await/Get when cancellation interrupts
// it. Kind identifies the awaiter that observed the cancellation, useful
// for logging (spec §7.1).
type CancellationError struct {
	Kind  AwaiterKind
	cause error
}

func (e *CancellationError) Error() string { return e.cause.Error() }
func (e *CancellationError) Unwrap() error { return e.cause }

func newCancellationError(kind AwaiterKind) *CancellationError {
	return &CancellationError{Kind: kind, cause: ErrCancelled}
}

func newShutdownError(kind AwaiterKind) *CancellationError {
	return &CancellationError{Kind: kind, cause: ErrShutdown}
}

// userPanic normalizes a recovered panic into an error for storage in a
// coroutine's result slot. A panic with a non-error value is wrapped so
// the original value is still retrievable via errors.Unwrap-adjacent
// inspection (stored as-is in userPanic.Value), matching how the teacher
// recovers everything except ErrCancelled in catchCancellation and lets
// everything else re-panic — here, since the panic happens on a
// dedicated per-coroutine goroutine, we must capture it rather than
// re-panic (that would just crash the process on an unrelated stack).
type userPanic struct {
	Value any
}

func (p *userPanic) Error() string {
	if err, ok := p.Value.(error); ok {
		return err.Error()
	}
	return "weave: coroutine panicked"
}
