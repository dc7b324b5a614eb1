package weave

import "sync"

// The following are the synchronous (OS-thread-blocking) events of spec
// component C3: thin wrappers over sync.Mutex/sync.Cond, used wherever
// an async coroutine needs to hand a result back to a blocking OS
// thread (SyncTask.Get, spec §4.7) or where a CountdownEvent's proxy
// waiter (§4.4.1) targets a plain OS thread instead of another
// coroutine. This is one of the few places weave reaches for the
// standard library directly rather than a corpus dependency: spec §4.4.1
// calls for "wrappers over an OS mutex/condvar" specifically, and no
// dependency in the retrieved corpus models a condition variable more
// idiomatically than sync.Cond itself (see DESIGN.md).

// ManualResetSyncEvent blocks OS threads until Set is called; it stays
// signalled until Reset is called again.
type ManualResetSyncEvent struct {
	mu      sync.Mutex
	cond    *sync.Cond
	signals bool
}

// NewManualResetSyncEvent returns an event, initially unsignalled unless
// signalled is true.
func NewManualResetSyncEvent(signalled bool) *ManualResetSyncEvent {
	e := &ManualResetSyncEvent{signals: signalled}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Set signals the event, waking every blocked Wait call.
func (e *ManualResetSyncEvent) Set() {
	e.mu.Lock()
	e.signals = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Reset clears the signalled state.
func (e *ManualResetSyncEvent) Reset() {
	e.mu.Lock()
	e.signals = false
	e.mu.Unlock()
}

// Wait blocks the calling OS thread until the event is signalled.
func (e *ManualResetSyncEvent) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.signals {
		e.cond.Wait()
	}
}

// IsSet reports the current signalled state without blocking.
func (e *ManualResetSyncEvent) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals
}

// AutoResetSyncEvent wakes exactly one waiter per Set call, then
// automatically reverts to unsignalled. Pool workers do not use it: each
// parks on its own buffered wake channel (poolWorker.wake in pool.go).
type AutoResetSyncEvent struct {
	mu      sync.Mutex
	cond    *sync.Cond
	signals bool
}

func NewAutoResetSyncEvent() *AutoResetSyncEvent {
	e := &AutoResetSyncEvent{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *AutoResetSyncEvent) Set() {
	e.mu.Lock()
	e.signals = true
	e.mu.Unlock()
	e.cond.Signal()
}

func (e *AutoResetSyncEvent) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.signals {
		e.cond.Wait()
	}
	e.signals = false
}

// AutoResetCountdownSyncEvent is the synchronous counterpart of an
// AsyncCountdownEvent: OS threads block in Wait until count reaches
// zero. No CountdownEvent proxy method targets it:
// CountdownEvent.EnqueueProxySyncEvent takes a *ManualResetSyncEvent.
type AutoResetCountdownSyncEvent struct {
	mu           sync.Mutex
	cond         *sync.Cond
	initialCount int64
	count        int64
}

func NewAutoResetCountdownSyncEvent(count int64) *AutoResetCountdownSyncEvent {
	e := &AutoResetCountdownSyncEvent{initialCount: count, count: count}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *AutoResetCountdownSyncEvent) CountDown() {
	e.mu.Lock()
	if e.count > 0 {
		e.count--
		if e.count == 0 {
			e.cond.Broadcast()
		}
	}
	e.mu.Unlock()
}

// Wait blocks until the count reaches zero, then restores it to its
// initial value so the event can be counted down to zero again by a
// later round (mirrors the original's sync_auto_reset_countdown_event.cpp
// resetting m_count to m_initialCount at the end of wait()).
func (e *AutoResetCountdownSyncEvent) Wait() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.count > 0 {
		e.cond.Wait()
	}
	e.count = e.initialCount
}
