package weave

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/errgroup"

	"github.com/nvlled/weave/internal/queue"
	"github.com/nvlled/weave/internal/spin"

	_ "go.uber.org/automaxprocs"
)

// maxChainedExecutionAllowance bounds symmetric transfer (spec §4.6):
// once a worker has chain-resumed this many coroutines in a row without
// returning to its dispatch loop, it must enqueue the next one instead.
const maxChainedExecutionAllowance = 100

// numRemoteWorkChecksBeforeSleep is the slow-path poll count of spec
// §4.6 step 2.
const numRemoteWorkChecksBeforeSleep = 32

// PoolOptions configures the two concrete worker-thread counts spec.md
// §1 calls out as configuration, not design.
type PoolOptions struct {
	// DefaultWorkers <= 0 resolves to min(runtime.GOMAXPROCS(0), 10).
	DefaultWorkers int
	// BackgroundWorkers <= 0 resolves to 5.
	BackgroundWorkers int
}

// Pool is one of the runtime's two worker-thread pools (spec component
// C8). The default pool participates in local-queue work stealing; the
// background pool sets noLocalWork and only dispatches through the
// global queue, per spec §4.6.
type Pool struct {
	name        string
	kind        PoolKind
	noLocalWork bool

	global *queue.FIFO[CoroutineRecord]

	workers []*poolWorker

	pendingWakeups atomic.Int64
	mayBeSleeping  atomic.Int64
	sleeping       atomic.Int64

	shuttingDown atomic.Bool
	forceStop    atomic.Bool

	group errgroup.Group

	// sem is a weighted semaphore sized to the pool's worker count. No
	// code path acquires it: both pools run one goroutine per worker, and
	// that worker count is what bounds each pool's concurrency.
	sem *semaphore.Weighted
}

type poolWorker struct {
	pool  *Pool
	index int

	local *queue.FIFO[CoroutineRecord]
	wake  chan struct{} // auto-reset park/wake event, buffered 1

	sleeping atomic.Bool
	rng      *rand.Rand
	spinner  spin.Waiter
}

var (
	defaultPool    *Pool
	backgroundPool *Pool
	poolInitOnce   sync.Once
	poolOptions    PoolOptions
)

// Configure sets the worker counts for both pools. Must be called before
// the first task is scheduled; subsequent calls are ignored once the
// pools have started, matching the teacher's init-time PreAllocCoroutines
// pattern of one-shot startup configuration.
func Configure(opts PoolOptions) {
	poolOptions = opts
}

func ensurePools() {
	poolInitOnce.Do(func() {
		n := poolOptions.DefaultWorkers
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
			if n > 10 {
				n = 10
			}
		}
		b := poolOptions.BackgroundWorkers
		if b <= 0 {
			b = 5
		}
		defaultPool = newPool("default", Default, n, false)
		backgroundPool = newPool("background", Background, b, true)
		log().Info().Int("default", n).Int("background", b).Msg("pools started")
	})
}

func newPool(name string, kind PoolKind, workers int, noLocalWork bool) *Pool {
	p := &Pool{
		name:        name,
		kind:        kind,
		noLocalWork: noLocalWork,
		global:      queue.New[CoroutineRecord](),
		sem:         semaphore.NewWeighted(int64(workers)),
	}
	p.workers = make([]*poolWorker, workers)
	for i := 0; i < workers; i++ {
		w := &poolWorker{
			pool:  p,
			index: i,
			local: queue.New[CoroutineRecord](),
			wake:  make(chan struct{}, 1),
			rng:   rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
		}
		p.workers[i] = w
		p.group.Go(func() error {
			w.loop()
			return nil
		})
	}
	return p
}

func poolFor(kind PoolKind) *Pool {
	ensurePools()
	switch kind {
	case Background:
		return backgroundPool
	default:
		return defaultPool
	}
}

// ShutdownAll requests a graceful shutdown of both pools: workers finish
// current work and stop polling for more (spec §6 "ThreadPool::shutdownAll").
func ShutdownAll() {
	if defaultPool != nil {
		defaultPool.shuttingDown.Store(true)
		defaultPool.wakeAll()
	}
	if backgroundPool != nil {
		backgroundPool.shuttingDown.Store(true)
		backgroundPool.wakeAll()
	}
}

// ShutdownImmediately additionally forces onResume to raise
// ShutdownCancellation on every coroutine still suspended, even ones
// normally immune to cancellation (spec §5, §7.1).
func ShutdownImmediately() {
	if defaultPool != nil {
		defaultPool.forceStop.Store(true)
	}
	if backgroundPool != nil {
		backgroundPool.forceStop.Store(true)
	}
	ShutdownAll()
}

// WaitForAllThreadsIdle blocks until every worker in both pools is
// parked with no pending work, for tests and graceful drains.
func WaitForAllThreadsIdle() {
	for _, p := range []*Pool{defaultPool, backgroundPool} {
		if p == nil {
			continue
		}
		for {
			if p.global.Empty() && p.sleeping.Load() == int64(len(p.workers)) {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func isForcingShutdown(kind PoolKind) bool {
	p := poolFor(kind)
	return p.forceStop.Load()
}

func (p *Pool) wakeAll() {
	for _, w := range p.workers {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// wakeOne implements the wake-one protocol of spec §4.6: pick a sleeping
// worker to notify; if none can be found, bank a credit in
// pendingWakeups so a worker that later finishes a work item can consume
// it instead of parking again, avoiding thundering-herd wakeups.
func (p *Pool) wakeOne() {
	for _, w := range p.workers {
		if w.sleeping.CompareAndSwap(true, false) {
			p.sleeping.Add(-1)
			select {
			case w.wake <- struct{}{}:
			default:
			}
			return
		}
	}
	if p.mayBeSleeping.Load() > 0 {
		p.pendingWakeups.Add(1)
	}
}

// schedule enqueues rec onto the pool matching its affinity: local queue
// if the caller is a worker of that pool's own goroutine, global queue
// otherwise — approximated here as always-global-plus-steal, since
// coroutine bodies run on dedicated goroutines rather than worker
// goroutines themselves (see coroutine.go doc comment on park/finish).
// Chained execution (drive) is what actually realizes the
// same-worker fast path; ordinary schedule() calls are the cross-pool /
// wakeup-driven path of spec §4.6.
func schedule(rec *CoroutineRecord) {
	p := poolFor(rec.Pool)
	p.global.Enqueue(rec)
	p.wakeOne()
}

// resolvePool turns PoolKind.Current into a concrete pool using the
// creator's context, spec §6: "Current binds at construction time to
// the creator's pool or Default if none." Go has no thread-local
// storage for "current pool", so callers pass the creating coroutine's
// *Ctx explicitly (nil when constructing outside any coroutine) —
// explicit context in place of a thread-local, the same trade Go's own
// context.Context makes; recorded as an Open-Question decision in
// DESIGN.md.
func resolvePool(parent *Ctx, kind PoolKind) PoolKind {
	if kind != Current {
		return kind
	}
	if parent != nil {
		return parent.rec.Pool
	}
	return Default
}

// loop is a worker's main dispatch loop (spec §4.6).
func (w *poolWorker) loop() {
	for {
		if w.pool.shuttingDown.Load() && w.local.Empty() && w.pool.global.Empty() {
			return
		}

		rec, ok := w.tryGetWork()
		if ok {
			w.drive(rec, maxChainedExecutionAllowance)
			w.processPendingWakeup()
			continue
		}

		if w.slowPoll() {
			continue
		}

		w.park()
	}
}

func (w *poolWorker) tryGetWork() (*CoroutineRecord, bool) {
	// 1/128 chance to check global/steal first, to keep the global
	// queue and peers from starving under a hot local queue.
	if w.rng.Intn(128) == 0 {
		if rec, ok := w.pool.global.Dequeue(); ok {
			return rec, true
		}
		if rec, ok := w.steal(); ok {
			return rec, true
		}
	}
	if !w.pool.noLocalWork {
		if rec, ok := w.local.Dequeue(); ok {
			return rec, true
		}
	}
	if rec, ok := w.pool.global.Dequeue(); ok {
		return rec, true
	}
	return w.steal()
}

func (w *poolWorker) steal() (*CoroutineRecord, bool) {
	if w.pool.noLocalWork || len(w.pool.workers) < 2 {
		return nil, false
	}
	start := w.rng.Intn(len(w.pool.workers))
	for i := 0; i < len(w.pool.workers); i++ {
		peer := w.pool.workers[(start+i)%len(w.pool.workers)]
		if peer == w {
			continue
		}
		if rec, ok := peer.local.Dequeue(); ok {
			return rec, true
		}
	}
	return nil, false
}

func (w *poolWorker) processPendingWakeup() {
	for {
		n := w.pool.pendingWakeups.Load()
		if n <= 0 {
			return
		}
		if w.pool.pendingWakeups.CompareAndSwap(n, n-1) {
			w.pool.wakeOne()
			return
		}
	}
}

func (w *poolWorker) slowPoll() bool {
	w.spinner.Reset()
	for i := 0; i < numRemoteWorkChecksBeforeSleep; i++ {
		if w.pool.shuttingDown.Load() {
			return false
		}
		if rec, ok := w.tryGetWork(); ok {
			w.drive(rec, maxChainedExecutionAllowance)
			w.processPendingWakeup()
			return true
		}
		w.spinner.Spin()
	}
	return false
}

func (w *poolWorker) park() {
	w.pool.mayBeSleeping.Add(1)
	w.sleeping.Store(true)
	w.pool.sleeping.Add(1)
	select {
	case <-w.wake:
	case <-time.After(50 * time.Millisecond):
		// bounded park so a shutdown request is never missed for long,
		// since there is no portable "wake on shutdown" broadcast here.
	}
	if w.sleeping.CompareAndSwap(true, false) {
		w.pool.sleeping.Add(-1)
	}
	w.pool.mayBeSleeping.Add(-1)
}

// drive resumes rec and, while the primitive it suspends on hands back a
// coroutine eligible for chained execution, keeps resuming inline
// instead of returning to the dispatch loop — bounded by allowance
// (spec §4.6, P7). It never recurses: the allowance is threaded through
// an explicit loop, so worker stack depth never grows with chain length
// regardless of how many coroutines are chained.
func (w *poolWorker) drive(rec *CoroutineRecord, allowance int) {
	for rec != nil && allowance > 0 {
		next := w.resumeOnce(rec)
		allowance--
		rec = next
	}
	if rec != nil {
		schedule(rec)
	}
}

// resumeOnce performs a single synchronous resume-and-wait cycle,
// returning the next coroutine to chain into (if the awaiter that
// unblocked it requested chained execution) or nil.
func (w *poolWorker) resumeOnce(rec *CoroutineRecord) *CoroutineRecord {
	prev := rec.status.Load()
	switch prev {
	case NotStarted:
		if !rec.tryCAS(NotStarted, Running) {
			return nil
		}
		go runCoroutineBody(rec)
	case Resumed:
		rec.setStatus(Running)
		rec.resumeCh <- struct{}{}
	default:
		if !rec.tryCAS(prev, Running) {
			return nil
		}
		rec.resumeCh <- struct{}{}
	}

	<-rec.parkedCh
	return rec.takeChained()
}

// runCoroutineBody is the entry point of a coroutine's dedicated
// goroutine (spec §9: coroutine-as-language-feature note). It recovers
// any panic that escapes the body — Ctx.Yield and await report
// cancellation as returned errors, so this is a user panic, kept as is
// when its value is a *CancellationError — and stores it as the
// coroutine's result error if the body did not already call finish()
// itself on its normal-return path.
func runCoroutineBody(rec *CoroutineRecord) {
	defer func() {
		if e := recover(); e == nil {
			return
		} else if ce, ok := e.(*CancellationError); ok {
			rec.finish(nil, ce)
		} else if err, ok := e.(error); ok {
			rec.finish(nil, &userPanic{Value: err})
		} else {
			rec.finish(nil, &userPanic{Value: e})
		}
	}()
	rec.body(rec.ctx)
}
