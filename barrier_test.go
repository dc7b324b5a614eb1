package weave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

func TestBarrierReleasesTogether(t *testing.T) {
	const parties = 4
	b := weave.NewBarrier(parties)
	released := make(chan int, parties)

	for i := 0; i < parties-1; i++ {
		i := i
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			require.NoError(t, b.Await(ctx))
			released <- i
		})
	}

	select {
	case <-released:
		t.Fatal("a party was released before every party arrived")
	case <-time.After(20 * time.Millisecond):
	}

	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, b.Await(ctx))
		released <- parties - 1
	})

	for i := 0; i < parties; i++ {
		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatalf("party %d never released", i)
		}
	}
}

func TestBarrierReusableAcrossGenerations(t *testing.T) {
	const parties = 2
	b := weave.NewBarrier(parties)

	for gen := 0; gen < 3; gen++ {
		done := make(chan struct{}, parties)
		for i := 0; i < parties; i++ {
			weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
				require.NoError(t, b.Await(ctx))
				done <- struct{}{}
			})
		}
		for i := 0; i < parties; i++ {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("generation %d never completed", gen)
			}
		}
	}
}

func TestBarrierBreaksOnCancellation(t *testing.T) {
	const parties = 3
	b := weave.NewBarrier(parties)
	errs := make(chan error, parties-1)
	recs := make(chan *weave.CoroutineRecord, 1)

	for i := 0; i < parties-1; i++ {
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			select {
			case recs <- ctx.Coroutine():
			default:
			}
			errs <- b.Await(ctx)
		})
	}

	time.Sleep(20 * time.Millisecond)
	cancelled := <-recs
	cancelled.Cancel()

	for i := 0; i < parties-1; i++ {
		select {
		case err := <-errs:
			require.Error(t, err)
		case <-time.After(time.Second):
			t.Fatal("waiting party never observed the broken barrier")
		}
	}
}

// TestBarrierCloseWhileWaiting matches spec §8 scenario 5: a capacity-2
// barrier is destroyed while a coroutine waits on it. Close must both
// release the waiter with ErrBarrierBroken and itself return, rather
// than hang waiting for a party that will never arrive.
func TestBarrierCloseWhileWaiting(t *testing.T) {
	b := weave.NewBarrier(2)
	result := make(chan error, 1)

	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		result <- b.Await(ctx)
	})
	time.Sleep(20 * time.Millisecond)

	closeDone := make(chan struct{})
	go func() {
		b.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
	case <-time.After(time.Second):
		t.Fatal("Close never returned")
	}

	select {
	case err := <-result:
		require.ErrorIs(t, err, weave.ErrBarrierBroken)
	case <-time.After(time.Second):
		t.Fatal("waiting party never observed barrier teardown")
	}

	// A party arriving after Close must also observe the break rather
	// than blocking forever on a fresh generation.
	lateResult := make(chan error, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		lateResult <- b.Await(ctx)
	})
	select {
	case err := <-lateResult:
		require.ErrorIs(t, err, weave.ErrBarrierBroken)
	case <-time.After(time.Second):
		t.Fatal("post-Close arrival never returned")
	}
}
