package weave

import (
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// status is the coroutine state machine of spec §4.1. Unlike the
// teacher's bit-flag Control.state (carrot combines orthogonal flags:
// running/stopping/cancel), a coroutine here occupies exactly one of the
// states below at a time, so transitions are CAS-guarded on the whole
// word rather than via atombits.Set/Unset.
type status = uint32

const (
	NotStarted status = iota
	Running
	Paused
	Suspended
	PauseOnRunning
	Yielded
	Returned
	Completed
	Abandoned
	Resumed
	ReturnedCompleted
	YieldedSuspended
	FinalSuspended
	AbandonedFinalSuspended
	AbandonedYieldedSuspended
	AbandonedCompleted
	CompletedFinalSuspended
)

var statusNames = map[status]string{
	NotStarted:                "NotStarted",
	Running:                   "Running",
	Paused:                    "Paused",
	Suspended:                 "Suspended",
	PauseOnRunning:            "PauseOnRunning",
	Yielded:                   "Yielded",
	Returned:                  "Returned",
	Completed:                 "Completed",
	Abandoned:                 "Abandoned",
	Resumed:                   "Resumed",
	ReturnedCompleted:         "ReturnedCompleted",
	YieldedSuspended:          "YieldedSuspended",
	FinalSuspended:            "FinalSuspended",
	AbandonedFinalSuspended:   "AbandonedFinalSuspended",
	AbandonedYieldedSuspended: "AbandonedYieldedSuspended",
	AbandonedCompleted:        "AbandonedCompleted",
	CompletedFinalSuspended:   "CompletedFinalSuspended",
}

func (r *CoroutineRecord) statusString() string {
	return statusNames[r.status.Load()]
}

// legalFrom enumerates, for every target status, the set of statuses a
// transition into it may originate from. Any CAS attempt whose current
// value is absent from this set is a programming violation (spec I1) and
// aborts the process rather than returning an error.
var legalFrom = map[status][]status{
	Running:                   {NotStarted, Suspended, Paused, YieldedSuspended, Resumed},
	Paused:                    {PauseOnRunning},
	Suspended:                 {Running},
	PauseOnRunning:            {Suspended},
	Yielded:                   {Running},
	Returned:                  {Running},
	Completed:                 {Returned, ReturnedCompleted},
	Abandoned:                 {NotStarted, Suspended, Yielded, Paused, Resumed},
	Resumed:                   {PauseOnRunning, Paused},
	ReturnedCompleted:         {Returned},
	YieldedSuspended:          {Yielded},
	FinalSuspended:            {Returned, ReturnedCompleted},
	AbandonedFinalSuspended:   {FinalSuspended, Abandoned},
	AbandonedYieldedSuspended: {YieldedSuspended, Abandoned},
	AbandonedCompleted:        {Completed, Abandoned},
	CompletedFinalSuspended:   {FinalSuspended, Completed},
}

// setStatus implements the CAS transition function of spec §4.1. It
// returns the previous status on success. An illegal transition (target
// not reachable from the observed current value, spec I1) panics —
// callers never need to handle a returned error for this case, matching
// spec §7.3's "process abort" treatment of state-machine violations.
func (r *CoroutineRecord) setStatus(target status) status {
	froms := legalFrom[target]
	for {
		cur := r.status.Load()
		if !slices.Contains(froms, cur) {
			panic("weave: illegal coroutine state transition " + statusNames[cur] + " -> " + statusNames[target])
		}
		if r.status.CompareAndSwap(cur, target) {
			return cur
		}
	}
}

// tryCAS attempts a single transition without panicking on failure; used
// by the cancellation handshake (spec §4.5) and the scheduler's resume
// path, both of which must gracefully back off when another thread wins
// the race instead of treating the loss as illegal.
func (r *CoroutineRecord) tryCAS(from, to status) bool {
	return r.status.CompareAndSwap(from, to)
}

// statusWord is a thin rename of atomic.Uint32 kept for readability at
// call sites that declare the field.
type statusWord = atomic.Uint32
