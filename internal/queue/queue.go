// Package queue implements the intrusive lock-free FIFO shared by every
// wait list and run queue in weave (spec §4.2 / C2).
//
// Nodes own their own link field, so enqueue/dequeue never allocate. A
// node must not be enqueued on more than one FIFO at a time; the caller
// (coroutine record, awaiter, or worker run queue) is responsible for
// that invariant.
package queue

import "sync/atomic"

// Node is implemented by anything that can be linked into a FIFO. T is
// the node's own type, so the link field can be declared with the exact
// element type instead of an unsafe.Pointer cast.
type Node[T any] interface {
	next() *atomic.Pointer[T]
}

// Link is embedded by concrete node types to get the atomic next-pointer
// required by Node.
type Link[T any] struct {
	nextPtr atomic.Pointer[T]
}

func (l *Link[T]) next() *atomic.Pointer[T] { return &l.nextPtr }

// FIFO is a single-linked intrusive MPMC queue, implementing the
// enqueue/dequeue/remove contract of spec §4.2.
type FIFO[T Node[T]] struct {
	head  atomic.Pointer[T]
	tail  atomic.Pointer[T]
	count atomic.Int64
}

// New returns an empty FIFO.
func New[T Node[T]]() *FIFO[T] {
	return &FIFO[T]{}
}

// Enqueue appends n to the tail. n.next() is cleared first, so n must not
// currently belong to another FIFO.
func (q *FIFO[T]) Enqueue(n T) {
	n.next().Store(nil)
	prev := q.tail.Swap(n)
	if prev == nil {
		// queue was empty: publish n as head too.
		q.head.Store(n)
	} else {
		(*prev).next().Store(n)
	}
	q.count.Add(1)
}

// Dequeue removes and returns the head, or the zero value and false if
// the queue appeared empty.
func (q *FIFO[T]) Dequeue() (zero T, ok bool) {
	for {
		old := q.head.Load()
		if old == nil {
			return zero, false
		}
		if !q.head.CompareAndSwap(old, nil) {
			continue
		}
		next := (*old).next().Load()
		if next != nil {
			q.head.Store(next)
		} else {
			// Looked empty: try to clear tail too. If that races with a
			// concurrent enqueuer that already swapped itself in as the
			// new tail, spin until its link to old lands, then adopt it
			// as the new head.
			if q.tail.CompareAndSwap(old, nil) {
				q.count.Add(-1)
				return *old, true
			}
			for next == nil {
				next = (*old).next().Load()
			}
			q.head.Store(next)
		}
		q.count.Add(-1)
		return *old, true
	}
}

// Remove detaches n from the queue if present. Best-effort: under
// contention with a concurrent Dequeue of the same node it may return
// false even though n was (momentarily) a member — callers must not
// treat false as proof n was never enqueued (spec §9 open question).
func (q *FIFO[T]) Remove(n T) bool {
	limit := 2 * (int(q.count.Load()) + 1)
	for i := 0; i < limit; i++ {
		cur, ok := q.Dequeue()
		if !ok {
			return false
		}
		if any(cur) == any(n) {
			return true
		}
		q.Enqueue(cur)
	}
	return false
}

// Count returns the approximate number of queued nodes.
func (q *FIFO[T]) Count() int64 { return q.count.Load() }

// Snapshot returns the queued nodes in FIFO order without removing them,
// for diagnostics callers that only need to inspect membership (e.g.
// deduping awaiter kinds for a debug log line). Like Remove, it drains
// and re-enqueues under contention, so it is best-effort under a
// concurrent Dequeue/Remove of the same nodes.
func (q *FIFO[T]) Snapshot() []T {
	n := int(q.count.Load())
	out := make([]T, 0, n)
	limit := 2 * (n + 1)
	for i := 0; i < limit; i++ {
		cur, ok := q.Dequeue()
		if !ok {
			break
		}
		out = append(out, cur)
		q.Enqueue(cur)
	}
	return out
}

// Empty reports whether the queue currently has no nodes.
func (q *FIFO[T]) Empty() bool { return q.head.Load() == nil }
