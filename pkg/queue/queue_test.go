package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func valuesFactory[T any](values ...T) Factory[T] {
	return func(ctx context.Context) (Producer[T], error) {
		return Values(values...), nil
	}
}

func collect[T any](t *testing.T, out *Output[T]) []T {
	t.Helper()

	var got []T
	for out.Next() {
		got = append(got, out.Item())
	}
	<-out.Done()
	return got
}

func TestOutputCombinesProducersInOrder(t *testing.T) {
	q := New[string]()
	q.Enqueue(valuesFactory("a", "b"))
	q.Enqueue(valuesFactory("c"))
	q.Enqueue(valuesFactory[string]())
	q.Enqueue(valuesFactory("d", "e"))

	out := q.Output(context.Background())
	got := collect(t, out)

	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	require.NoError(t, out.Err())
	require.True(t, out.Completed())
}

func TestOutputIsIdempotent(t *testing.T) {
	q := New[int]()
	out := q.Output(context.Background())

	require.Same(t, out, q.Output(context.Background()))
	require.Same(t, out, q.Output(context.TODO()))

	collect(t, out)
}

func TestOutputCompletesWhenNothingQueued(t *testing.T) {
	q := New[int]()
	out := q.Output(context.Background())

	require.Empty(t, collect(t, out))
	require.NoError(t, out.Err())
	require.True(t, out.Completed())
}

func TestEnqueueWhileDraining(t *testing.T) {
	q := New[int]()

	var chained func(n int) Factory[int]
	chained = func(n int) Factory[int] {
		return func(ctx context.Context) (Producer[int], error) {
			return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
				if err := emit(n); err != nil {
					return err
				}
				if n < 5 && !q.Enqueue(chained(n+1)) {
					return errors.New("enqueue rejected")
				}
				return nil
			}), nil
		}
	}
	q.Enqueue(chained(1))

	got := collect(t, q.Output(context.Background()))
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestFactoriesAreInvokedLazily(t *testing.T) {
	q := New[int]()

	var invoked atomic.Int32
	release := make(chan struct{})

	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		invoked.Add(1)
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			<-release
			return emit(1)
		}), nil
	})
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		invoked.Add(1)
		return Values(2), nil
	})

	out := q.Output(context.Background())
	require.Eventually(t, func() bool { return invoked.Load() == 1 }, time.Second, time.Millisecond)

	// The second factory must stay inert while the first producer is running.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), invoked.Load())
	require.Equal(t, 1, q.Len())

	close(release)
	require.Equal(t, []int{1, 2}, collect(t, out))
	require.Equal(t, int32(2), invoked.Load())
}

func TestEnqueueAfterDrainIsRejected(t *testing.T) {
	q := New[int]()
	out := q.Output(context.Background())
	collect(t, out)

	require.False(t, q.Enqueue(valuesFactory(1)))
	require.False(t, q.Enqueue(nil))
}

func TestRegisterTransformAppliesInOrder(t *testing.T) {
	q := New[string]()
	q.Enqueue(valuesFactory("a"))
	q.Enqueue(valuesFactory("b"))

	suffix := func(s string) Transform[string] {
		return func(p Producer[string]) Producer[string] {
			return ProducerFunc[string](func(ctx context.Context, emit func(string) error) error {
				return p.Pipe(ctx, func(v string) error { return emit(v + s) })
			})
		}
	}
	q.RegisterTransform(suffix("1"))
	q.RegisterTransform(suffix("2"))

	got := collect(t, q.Output(context.Background()))
	require.Equal(t, []string{"a12", "b12"}, got)
}

func TestTransformReplacesProducer(t *testing.T) {
	q := New[string]()
	q.Enqueue(valuesFactory("original"))
	q.RegisterTransform(func(Producer[string]) Producer[string] {
		return Values("replaced")
	})

	got := collect(t, q.Output(context.Background()))
	require.Equal(t, []string{"replaced"}, got)
}

func TestLateTransformDoesNotAffectRunningProducer(t *testing.T) {
	q := New[string]()
	tag := func(s string) Transform[string] {
		return func(p Producer[string]) Producer[string] {
			return ProducerFunc[string](func(ctx context.Context, emit func(string) error) error {
				return p.Pipe(ctx, func(v string) error { return emit(v + s) })
			})
		}
	}

	q.Enqueue(func(ctx context.Context) (Producer[string], error) {
		return ProducerFunc[string](func(ctx context.Context, emit func(string) error) error {
			q.RegisterTransform(tag("!"))
			return emit("first")
		}), nil
	})
	q.Enqueue(valuesFactory("second"))

	got := collect(t, q.Output(context.Background()))
	require.Equal(t, []string{"first", "second!"}, got)
}

func TestRaiseErrorStopsOutput(t *testing.T) {
	q := New[int]()
	boom := errors.New("boom")

	var secondInvoked atomic.Bool
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			if err := emit(1); err != nil {
				return err
			}
			q.RaiseError(boom)
			// The raised error cancels this producer's context.
			<-ctx.Done()
			return ctx.Err()
		}), nil
	})
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		secondInvoked.Store(true)
		return Values(2), nil
	})

	out := q.Output(context.Background())
	got := collect(t, out)

	require.Equal(t, []int{1}, got)
	require.ErrorIs(t, out.Err(), boom)
	require.False(t, out.Completed())
	require.False(t, secondInvoked.Load())
}

func TestOnlyFirstErrorIsSurfaced(t *testing.T) {
	q := New[int]()
	first := errors.New("first")

	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			q.RaiseError(first)
			q.RaiseError(errors.New("second"))
			return errors.New("producer")
		}), nil
	})

	out := q.Output(context.Background())
	collect(t, out)
	require.Equal(t, first, out.Err())
}

func TestRaiseErrorBeforeOutput(t *testing.T) {
	q := New[int]()
	boom := errors.New("boom")
	q.Enqueue(valuesFactory(1))
	q.RaiseError(boom)

	out := q.Output(context.Background())
	require.Empty(t, collect(t, out))
	require.Equal(t, boom, out.Err())
	require.False(t, q.Enqueue(valuesFactory(2)))
}

func TestRaiseErrorAfterCompletionIsIgnored(t *testing.T) {
	q := New[int]()
	q.Enqueue(valuesFactory(1))

	out := q.Output(context.Background())
	collect(t, out)
	q.RaiseError(errors.New("late"))

	require.NoError(t, out.Err())
	require.True(t, out.Completed())
}

func TestFactoryErrorFailsOutput(t *testing.T) {
	q := New[int]()
	boom := errors.New("dial failed")
	q.Enqueue(valuesFactory(1))
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return nil, boom
	})
	q.Enqueue(valuesFactory(3))

	out := q.Output(context.Background())
	require.Equal(t, []int{1}, collect(t, out))
	require.ErrorIs(t, out.Err(), boom)
}

func TestProducerErrorFailsOutput(t *testing.T) {
	q := New[int]()
	boom := errors.New("truncated")
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			if err := emit(1); err != nil {
				return err
			}
			return boom
		}), nil
	})

	out := q.Output(context.Background())
	require.Equal(t, []int{1}, collect(t, out))
	require.ErrorIs(t, out.Err(), boom)
}

func TestBackpressureBlocksProducer(t *testing.T) {
	q := New[int]()

	var emitted atomic.Int32
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			for i := range 3 {
				if err := emit(i); err != nil {
					return err
				}
				emitted.Add(1)
			}
			return nil
		}), nil
	})

	out := q.Output(context.Background())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), emitted.Load())

	require.True(t, out.Next())
	require.Eventually(t, func() bool { return emitted.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), emitted.Load())

	require.Equal(t, []int{1, 2}, collect(t, out))
}

func TestCloseCancelsRunningProducer(t *testing.T) {
	q := New[int]()
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			for i := 0; ; i++ {
				if err := emit(i); err != nil {
					return err
				}
			}
		}), nil
	})

	out := q.Output(context.Background())
	require.True(t, out.Next())
	require.True(t, out.Next())
	out.Close()

	require.False(t, out.Next())
	<-out.Done()
	require.ErrorIs(t, out.Err(), ErrClosed)
}

func TestNoValueAfterRaisedError(t *testing.T) {
	boom := errors.New("boom")

	for range 50 {
		q := New[int]()
		q.Enqueue(func(ctx context.Context) (Producer[int], error) {
			return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
				if err := emit(1); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				q.RaiseError(boom)
				return emit(2)
			}), nil
		})

		out := q.Output(context.Background())
		require.True(t, out.Next())
		require.Equal(t, 1, out.Item())
		require.False(t, out.Next())
		<-out.Done()
		require.ErrorIs(t, out.Err(), boom)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New[int]()
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return ProducerFunc[int](func(ctx context.Context, emit func(int) error) error {
			<-ctx.Done()
			return ctx.Err()
		}), nil
	})

	out := q.Output(ctx)
	cancel()

	require.Empty(t, collect(t, out))
	require.ErrorIs(t, out.Err(), context.Canceled)
}

func TestAllYieldsValuesThenError(t *testing.T) {
	q := New[int]()
	boom := errors.New("boom")
	q.Enqueue(valuesFactory(1, 2))
	q.Enqueue(func(ctx context.Context) (Producer[int], error) {
		return nil, boom
	})

	out := q.Output(context.Background())

	var values []int
	var errs []error
	for v, err := range out.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values = append(values, v)
	}
	<-out.Done()

	require.Equal(t, []int{1, 2}, values)
	require.Equal(t, []error{boom}, errs)
}

func TestAllBreakClosesOutput(t *testing.T) {
	q := New[int]()
	q.Enqueue(valuesFactory(1, 2, 3))

	out := q.Output(context.Background())
	for v := range out.All() {
		if v == 1 {
			break
		}
	}
	<-out.Done()

	require.ErrorIs(t, out.Err(), ErrClosed)
}
