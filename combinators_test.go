package weave_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvlled/weave"
)

func TestWhenAllJoinsInOrder(t *testing.T) {
	result := make(chan []int, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		tasks := make([]*weave.AsyncTask[int], 5)
		for i := range tasks {
			i := i
			tasks[i] = weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
				require.NoError(t, inner.Sleep(time.Duration(5-i)*time.Millisecond))
				return i * i, nil
			})
		}
		got, err := weave.WhenAll(ctx, tasks...)
		require.NoError(t, err)
		result <- got
	})

	select {
	case got := <-result:
		require.Equal(t, []int{0, 1, 4, 9, 16}, got)
	case <-time.After(time.Second):
		t.Fatal("WhenAll never completed")
	}
}

func TestWhenAllReturnsFirstError(t *testing.T) {
	wantErr := errors.New("bad task")
	result := make(chan error, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		a := weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
			return 1, nil
		})
		b := weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
			return 0, wantErr
		})
		_, err := weave.WhenAll(ctx, a, b)
		result <- err
	})

	select {
	case err := <-result:
		require.ErrorIs(t, err, wantErr)
	case <-time.After(time.Second):
		t.Fatal("WhenAll never completed")
	}
}

func TestWhenAnyReturnsFirstFinisher(t *testing.T) {
	result := make(chan int, 1)
	weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
		slow := weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
			require.NoError(t, inner.Sleep(200*time.Millisecond))
			return 1, nil
		})
		fast := weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
			return 2, nil
		})
		got, err := weave.WhenAny(ctx, slow, fast)
		require.NoError(t, err)
		result <- got
	})

	select {
	case got := <-result:
		require.Equal(t, 2, got)
	case <-time.After(time.Second):
		t.Fatal("WhenAny never completed")
	}
}
