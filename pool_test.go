package weave_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

// TestWorkStealingDrainsBurst floods the default pool with far more
// simple tasks than there are workers and checks every one of them
// completes. With a single local queue and work-stealing disabled this
// would serialize onto one worker; this only checks the observable
// end state (all finish), since the stealing path itself is an
// internal scheduling decision.
func TestWorkStealingDrainsBurst(t *testing.T) {
	const n = 500
	var completed int64
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			require.NoError(t, ctx.Delay(2))
			atomic.AddInt64(&completed, 1)
			done <- struct{}{}
		})
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d/%d tasks completed before timeout", atomic.LoadInt64(&completed), n)
		}
	}
	require.EqualValues(t, n, atomic.LoadInt64(&completed))
}

// TestChainedExecutionAcrossMutexHandoffs strings many coroutines
// through the same mutex, each handing off to the next via chained
// execution on Unlock, and checks the hand-off chain eventually
// delivers every link instead of getting stuck once the chained
// allowance is exhausted partway through.
func TestChainedExecutionAcrossMutexHandoffs(t *testing.T) {
	const links = 300
	m := weave.NewMutex()
	var reached int64
	done := make(chan struct{})

	holder := make(chan struct{})
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		close(holder)
		<-done // keep it locked until every link has queued up
		m.Unlock(ctx)
	})
	<-holder

	for i := 0; i < links; i++ {
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			require.NoError(t, m.Lock(ctx))
			n := atomic.AddInt64(&reached, 1)
			m.Unlock(ctx)
			if n == links {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d/%d chained links ran before timeout", atomic.LoadInt64(&reached), links)
	}
}

func TestWaitForAllThreadsIdle(t *testing.T) {
	done := make(chan struct{})
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, ctx.Sleep(10*time.Millisecond))
		close(done)
	})
	<-done

	idle := make(chan struct{})
	go func() {
		weave.WaitForAllThreadsIdle()
		close(idle)
	}()
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForAllThreadsIdle never returned once work drained")
	}
}
