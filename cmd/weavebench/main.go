// Command weavebench drives a handful of end-to-end coroutine scenarios
// against the weave runtime, useful for eyeballing scheduler behavior
// and as a manual smoke test alongside the package's own test suite.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvlled/weave"
)

func main() {
	root := &cobra.Command{
		Use:   "weavebench",
		Short: "Exercises the weave coroutine runtime against a few canned scenarios",
	}

	var debug bool
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable console-writer debug logging")
	cobra.OnInitialize(func() {
		weave.SetLogging(debug)
	})

	root.AddCommand(
		newBarrierCmd(),
		newBarrierDestroyCmd(),
		newMutexCmd(),
		newCancelCmd(),
		newAbandonCmd(),
		newPoolSwitchCmd(),
		newWhenAllCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newBarrierCmd() *cobra.Command {
	var parties int
	cmd := &cobra.Command{
		Use:   "barrier",
		Short: "Rendezvous N coroutines at a Barrier and report release order",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := weave.NewBarrier(parties)
			order := make(chan int, parties)
			for i := 0; i < parties; i++ {
				i := i
				weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
					time.Sleep(time.Duration(parties-i) * time.Millisecond)
					if err := b.Await(ctx); err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "party %d: %v\n", i, err)
						return
					}
					order <- i
				})
			}
			for i := 0; i < parties; i++ {
				fmt.Fprintf(cmd.OutOrStdout(), "released: party %d\n", <-order)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&parties, "parties", 4, "number of barrier parties")
	return cmd
}

func newBarrierDestroyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "barrier-destroy",
		Short: "Close a barrier while a party waits and report how it observed the teardown",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := weave.NewBarrier(2)
			result := make(chan error, 1)
			weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
				result <- b.Await(ctx)
			})
			time.Sleep(20 * time.Millisecond)
			b.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "waiting party observed: %v\n", <-result)
			return nil
		},
	}
	return cmd
}

func newMutexCmd() *cobra.Command {
	var workers, increments int
	cmd := &cobra.Command{
		Use:   "mutex",
		Short: "Hammer a shared counter through a Mutex and check the final total",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := weave.NewMutex()
			counter := 0
			done := make(chan struct{}, workers)
			for i := 0; i < workers; i++ {
				weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
					for j := 0; j < increments; j++ {
						if err := m.Lock(ctx); err != nil {
							break
						}
						counter++
						m.Unlock(ctx)
					}
					done <- struct{}{}
				})
			}
			for i := 0; i < workers; i++ {
				<-done
			}
			want := workers * increments
			fmt.Fprintf(cmd.OutOrStdout(), "counter=%d want=%d consistent=%v\n", counter, want, counter == want)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent incrementers")
	cmd.Flags().IntVar(&increments, "increments", 1000, "increments per worker")
	return cmd
}

func newCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a coroutine parked awaiting an Event and report the error",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := weave.NewEvent(false)
			result := make(chan error, 1)
			rec := weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
				result <- ev.Await(ctx)
			})
			time.Sleep(20 * time.Millisecond)
			rec.Cancel()
			fmt.Fprintf(cmd.OutOrStdout(), "await returned: %v\n", <-result)
			return nil
		},
	}
	return cmd
}

func newAbandonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abandon",
		Short: "Drop an AsyncTask handle with cancelOnAbandon unset and confirm it still runs to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			done := make(chan struct{})
			task := weave.NewAsyncTask[int](nil, weave.Default, func(ctx *weave.Ctx) (int, error) {
				if err := ctx.Sleep(30 * time.Millisecond); err != nil {
					return 0, err
				}
				close(done)
				return 42, nil
			})
			task.Release() // drop the only handle without awaiting
			<-done
			fmt.Fprintln(cmd.OutOrStdout(), "abandoned task still ran to completion")
			return nil
		},
	}
	return cmd
}

func newPoolSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool-switch",
		Short: "Start a coroutine on Default and a child on Background, report both pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := make(chan string, 1)
			weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
				outer := ctx.Coroutine().Pool
				child := weave.NewSyncTask[string](ctx, weave.Background, func(inner *weave.Ctx) (string, error) {
					return inner.Coroutine().Pool.String(), nil
				})
				innerPool, _ := child.Get()
				result <- fmt.Sprintf("outer=%v inner=%v", outer, innerPool)
			})
			fmt.Fprintln(cmd.OutOrStdout(), <-result)
			return nil
		},
	}
	return cmd
}

func newWhenAllCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "when-all",
		Short: "Fan out N AsyncTasks and join them with WhenAll",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := make(chan string, 1)
			weave.StartSimpleTask(weave.Default, func(ctx *weave.Ctx) {
				tasks := make([]*weave.AsyncTask[int], n)
				for i := range tasks {
					i := i
					tasks[i] = weave.NewAsyncTask[int](ctx, weave.Current, func(inner *weave.Ctx) (int, error) {
						return i * i, nil
					})
				}
				squares, err := weave.WhenAll(ctx, tasks...)
				if err != nil {
					result <- fmt.Sprintf("error: %v", err)
					return
				}
				result <- fmt.Sprintf("%v", squares)
			})
			fmt.Fprintln(cmd.OutOrStdout(), <-result)
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 5, "number of tasks to fan out")
	return cmd
}
