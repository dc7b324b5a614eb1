package weave_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

func TestMutexExclusion(t *testing.T) {
	m := weave.NewMutex()
	var counter int64
	const workers = 10
	const increments = 200
	done := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			for j := 0; j < increments; j++ {
				require.NoError(t, m.Lock(ctx))
				counter++
				m.Unlock(ctx)
			}
			done <- struct{}{}
		})
	}

	for i := 0; i < workers; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for mutex workers")
		}
	}

	require.EqualValues(t, workers*increments, counter)
}

func TestMutexTryLock(t *testing.T) {
	m := weave.NewMutex()
	holder := make(chan *weave.Ctx, 1)
	release := make(chan struct{})

	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		holder <- ctx
		<-release
		m.Unlock(ctx)
	})

	var ctx *weave.Ctx
	select {
	case ctx = <-holder:
	case <-time.After(time.Second):
		t.Fatal("never acquired the lock")
	}
	_ = ctx
	require.True(t, m.IsLocked())
	require.False(t, m.TryLock(&weave.Ctx{}))

	close(release)
}

// TestMutexUnlockNotHeldIsNoOp matches async_mutex.cpp's unlock(): a
// non-owner calling Unlock on a mutex that isn't cancelled is a no-op,
// not a panic — it doesn't disturb the real owner's hold.
func TestMutexUnlockNotHeldIsNoOp(t *testing.T) {
	m := weave.NewMutex()
	holderReady := make(chan struct{})
	release := make(chan struct{})
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		close(holderReady)
		<-release
		m.Unlock(ctx)
	})
	<-holderReady

	done := make(chan struct{})
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		m.Unlock(ctx) // not the owner; must not panic or release the lock
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("non-owner Unlock never returned")
	}
	require.True(t, m.IsLocked(), "non-owner Unlock must not release the mutex")
	close(release)
}

// TestMutexCancelPropagatesToWaiters matches async_mutex_tests.cpp's
// "Immediately cancel Async awaiting on mutex": cancelling the mutex
// itself (not a single coroutine) breaks every waiter with a
// cancellation error instead of granting them the lock.
func TestMutexCancelPropagatesToWaiters(t *testing.T) {
	m := weave.NewMutex()
	holderReady := make(chan struct{})
	release := make(chan struct{})
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		close(holderReady)
		<-release
		m.Unlock(ctx)
	})
	<-holderReady

	result := make(chan error, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		result <- m.Lock(ctx)
	})
	time.Sleep(10 * time.Millisecond)
	m.Cancel()

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never resumed")
	}
	require.True(t, m.IsCancelled())
	close(release)
}

func TestMutexFIFOFairness(t *testing.T) {
	m := weave.NewMutex()
	var order int64
	var first, second int64 = -1, -1

	holderReady := make(chan struct{})
	releaseHolder := make(chan struct{})
	// Unlock is called from inside the holding coroutine's own body
	// (just gated on an external channel) rather than from this test
	// goroutine directly: chained execution on unlock only fires the
	// waiting coroutine inline if the release happens synchronously
	// within the releasing coroutine's own execution, before it
	// finishes — the realistic Lock/defer-Unlock shape.
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		close(holderReady)
		<-releaseHolder
		m.Unlock(ctx)
	})
	<-holderReady

	arrived := make(chan struct{}, 2)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		first = atomic.AddInt64(&order, 1)
		m.Unlock(ctx)
		arrived <- struct{}{}
	})
	time.Sleep(10 * time.Millisecond)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, m.Lock(ctx))
		second = atomic.AddInt64(&order, 1)
		m.Unlock(ctx)
		arrived <- struct{}{}
	})

	time.Sleep(10 * time.Millisecond)
	close(releaseHolder)

	for i := 0; i < 2; i++ {
		<-arrived
	}
	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), second)
}
