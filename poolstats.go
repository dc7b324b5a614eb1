package weave

import "golang.org/x/exp/slices"

// WorkerStats is a point-in-time snapshot of one worker's state, for
// diagnostics. Nothing in the runtime itself or in cmd/weavebench
// consults this beyond Pool.Stats.
type WorkerStats struct {
	Index     int
	LocalSize int64
	Sleeping  bool
}

// PoolStats summarizes a whole pool.
type PoolStats struct {
	Name        string
	GlobalSize  int64
	SleepingNum int64
	Workers     []WorkerStats
}

// Stats returns a snapshot of the pool's queues and worker states,
// workers ordered by descending local-queue depth so the busiest
// workers sort first. The sort uses golang.org/x/exp/slices (also used
// by status.go and coroutine.go), replacing the teacher's generic
// sliceSet (also backed by x/exp/slices), which this runtime has no use
// for once its coroutine registry moved to the intrusive queue.FIFO.
func (p *Pool) Stats() PoolStats {
	st := PoolStats{
		Name:        p.name,
		GlobalSize:  p.global.Count(),
		SleepingNum: p.sleeping.Load(),
		Workers:     make([]WorkerStats, len(p.workers)),
	}
	for i, w := range p.workers {
		st.Workers[i] = WorkerStats{
			Index:     w.index,
			LocalSize: w.local.Count(),
			Sleeping:  w.sleeping.Load(),
		}
	}
	slices.SortFunc(st.Workers, func(a, b WorkerStats) bool {
		return a.LocalSize > b.LocalSize
	})
	return st
}

// DefaultPoolStats and BackgroundPoolStats are convenience accessors for
// the two well-known pools, lazily starting them if nothing has
// scheduled work yet.
func DefaultPoolStats() PoolStats    { return poolFor(Default).Stats() }
func BackgroundPoolStats() PoolStats { return poolFor(Background).Stats() }
