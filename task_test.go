package weave_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

func TestTaskStartsOnFirstAwait(t *testing.T) {
	started := make(chan struct{}, 1)
	task := weave.NewTask[int](nil, weave.Default, func(ctx *weave.Ctx) (int, error) {
		started <- struct{}{}
		return 5, nil
	})

	select {
	case <-started:
		t.Fatal("lazy task must not start before the first Await")
	case <-time.After(20 * time.Millisecond):
	}

	result := make(chan int, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		v, err := task.Await(ctx)
		require.NoError(t, err)
		result <- v
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started after Await")
	}
	select {
	case v := <-result:
		require.Equal(t, 5, v)
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}
}

func TestAsyncTaskStartsEagerly(t *testing.T) {
	started := make(chan struct{}, 1)
	task := weave.NewAsyncTask[int](nil, weave.Default, func(ctx *weave.Ctx) (int, error) {
		started <- struct{}{}
		return 9, nil
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("eager task never started without being awaited")
	}

	result := make(chan int, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		v, err := task.Await(ctx)
		require.NoError(t, err)
		result <- v
	})
	select {
	case v := <-result:
		require.Equal(t, 9, v)
	case <-time.After(time.Second):
		t.Fatal("awaiting an already-finished async task never resumed")
	}
}

func TestSyncTaskGetBlocksOSThread(t *testing.T) {
	task := weave.NewSyncTask[string](nil, weave.Default, func(ctx *weave.Ctx) (string, error) {
		require.NoError(t, ctx.Sleep(20*time.Millisecond))
		return "done", nil
	})
	v, err := task.Get()
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestAsyncTaskPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	task := weave.NewAsyncTask[int](nil, weave.Default, func(ctx *weave.Ctx) (int, error) {
		return 0, wantErr
	})
	result := make(chan error, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		_, err := task.Await(ctx)
		result <- err
	})
	select {
	case err := <-result:
		require.ErrorIs(t, err, wantErr)
	case <-time.After(time.Second):
		t.Fatal("task awaiter never resumed")
	}
}

func TestCancellationReturnsErrorNotPanic(t *testing.T) {
	ev := weave.NewEvent(false)
	result := make(chan error, 1)
	var rec *weave.CoroutineRecord
	ready := make(chan struct{})

	rec = weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		close(ready)
		result <- ev.Await(ctx)
	})
	<-ready
	time.Sleep(20 * time.Millisecond)
	rec.Cancel()

	select {
	case err := <-result:
		require.Error(t, err)
		require.True(t, errors.Is(err, weave.ErrCancelled))
	case <-time.After(time.Second):
		t.Fatal("cancelled coroutine never resumed")
	}
}
