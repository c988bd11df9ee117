package queue

import (
	"context"
	"slices"
	"sync"
)

// Producer pipes a finite sequence of values into emit. Pipe must stop and
// return when ctx is done or when emit returns an error.
type Producer[T any] interface {
	Pipe(ctx context.Context, emit func(T) error) error
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc[T any] func(ctx context.Context, emit func(T) error) error

// Pipe calls f(ctx, emit).
func (f ProducerFunc[T]) Pipe(ctx context.Context, emit func(T) error) error {
	return f(ctx, emit)
}

// Values returns a Producer that emits the given values in order.
func Values[T any](values ...T) Producer[T] {
	return ProducerFunc[T](func(ctx context.Context, emit func(T) error) error {
		for _, v := range values {
			if err := emit(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Factory creates a Producer. It is invoked only when the queue dequeues it.
type Factory[T any] func(ctx context.Context) (Producer[T], error)

// Transform wraps or replaces a dequeued Producer before it is piped.
type Transform[T any] func(Producer[T]) Producer[T]

// Queue is a FIFO of producer factories drained into a single Output.
// A Queue serves one run; it cannot be restarted once its output ended.
type Queue[T any] struct {
	mu         sync.Mutex
	factories  []Factory[T]
	transforms []Transform[T]
	out        *Output[T]
	closed     bool
	pending    error
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue appends a factory. It reports false when the queue no longer accepts
// work, either because it drained or because an error was raised.
func (q *Queue[T]) Enqueue(f Factory[T]) bool {
	if f == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.factories = append(q.factories, f)
	return true
}

// RegisterTransform appends a transform applied to every producer dequeued
// after this call.
func (q *Queue[T]) RegisterTransform(fn Transform[T]) {
	if fn == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.transforms = append(q.transforms, fn)
}

// Len returns the number of factories waiting to be dequeued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.factories)
}

// Output returns the merged output, starting the drain loop on the first
// call. Later calls return the same Output and ignore ctx.
func (q *Queue[T]) Output(ctx context.Context) *Output[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.out != nil {
		return q.out
	}

	drainCtx, cancel := context.WithCancelCause(ctx)
	q.out = newOutput[T](cancel)
	if q.pending != nil {
		q.out.fail(q.pending)
	}

	go q.drain(drainCtx, q.out)
	return q.out
}

// RaiseError fails the output with err and stops all further dequeuing.
// Only the first error raised during a run is surfaced.
func (q *Queue[T]) RaiseError(err error) {
	if err == nil {
		return
	}

	q.mu.Lock()
	q.closed = true
	q.factories = nil
	out := q.out
	if out == nil && q.pending == nil {
		q.pending = err
	}
	q.mu.Unlock()

	if out != nil {
		out.fail(err)
	}
}

// next pops the head factory together with a snapshot of the transforms.
// An empty queue is closed in the same critical section so that a racing
// Enqueue is rejected rather than lost.
func (q *Queue[T]) next() (Factory[T], []Transform[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.factories) == 0 {
		q.closed = true
		return nil, nil, false
	}

	f := q.factories[0]
	q.factories[0] = nil
	q.factories = q.factories[1:]
	return f, slices.Clone(q.transforms), true
}

func (q *Queue[T]) drain(ctx context.Context, out *Output[T]) {
	defer out.finish()

	emit := func(v T) error {
		select {
		case out.items <- v:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	for {
		if ctx.Err() != nil {
			q.RaiseError(context.Cause(ctx))
			return
		}

		factory, transforms, ok := q.next()
		if !ok {
			return
		}

		producer, err := factory(ctx)
		if err != nil {
			q.RaiseError(err)
			return
		}
		for _, transform := range transforms {
			producer = transform(producer)
		}

		if err := producer.Pipe(ctx, emit); err != nil {
			q.RaiseError(err)
			return
		}
	}
}
