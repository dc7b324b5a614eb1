package weave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

func TestEventSignalReleasesWaiters(t *testing.T) {
	ev := weave.NewEvent(false)
	const n = 5
	released := make(chan int, n)

	for i := 0; i < n; i++ {
		i := i
		weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
			err := ev.Await(ctx)
			require.NoError(t, err)
			released <- i
		})
	}

	select {
	case <-released:
		t.Fatal("coroutine resumed before the event was signalled")
	case <-time.After(20 * time.Millisecond):
	}

	ev.Signal()

	for i := 0; i < n; i++ {
		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never released after Signal", i)
		}
	}
}

func TestEventAwaitAlreadySignalled(t *testing.T) {
	ev := weave.NewEvent(true)
	require.True(t, ev.IsSignalled())

	done := make(chan error, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		done <- ev.Await(ctx)
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await on an already-signalled event should resolve immediately")
	}
}

func TestValueSingleAssignment(t *testing.T) {
	v := weave.NewValue[int]()
	result := make(chan int, 1)

	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		got, err := v.Await(ctx)
		require.NoError(t, err)
		result <- got
	})

	time.Sleep(10 * time.Millisecond)
	v.Set(7)
	v.Set(99) // second write must be ignored

	select {
	case got := <-result:
		require.Equal(t, 7, got)
	case <-time.After(time.Second):
		t.Fatal("value awaiter never resumed")
	}
}

func TestCountdownEventReachesZero(t *testing.T) {
	ce := weave.NewCountdownEvent(3, 3)
	done := make(chan struct{})

	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		require.NoError(t, ce.Await(ctx))
		close(done)
	})

	ce.CountDown()
	ce.CountDown()
	select {
	case <-done:
		t.Fatal("countdown awaiter resumed before count reached zero")
	case <-time.After(20 * time.Millisecond):
	}

	ce.CountDown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown awaiter never resumed once count reached zero")
	}
}
