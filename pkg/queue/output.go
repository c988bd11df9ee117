package queue

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrClosed is reported by Output.Err after the consumer closed the output
// before it completed.
var ErrClosed = errors.New("queue output closed")

type outputState int

const (
	stateRunning outputState = iota
	stateCompleted
	stateFailed
)

// Output is the single sink of a Queue. It is written only by the queue and
// read by one consumer goroutine, in the style of sql.Rows:
//
//	for out.Next() {
//		use(out.Item())
//	}
//	err := out.Err()
type Output[T any] struct {
	items  chan T
	failed chan struct{}
	done   chan struct{}
	cancel context.CancelCauseFunc

	mu    sync.Mutex
	state outputState
	err   error

	current T
}

func newOutput[T any](cancel context.CancelCauseFunc) *Output[T] {
	return &Output[T]{
		items:  make(chan T),
		failed: make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Next waits for the next value. It returns false once the output completed
// or failed; Err tells the two apart. A raised error takes priority over
// values that were not yet delivered.
func (o *Output[T]) Next() bool {
	select {
	case <-o.failed:
		return false
	default:
	}

	select {
	case v, ok := <-o.items:
		if !ok {
			return false
		}
		// The send can win the race against a concurrent failure.
		select {
		case <-o.failed:
			return false
		default:
		}
		o.current = v
		return true
	case <-o.failed:
		return false
	}
}

// Item returns the value read by the last successful call to Next.
func (o *Output[T]) Item() T {
	return o.current
}

// Err returns the error that failed the output, or nil if it completed or is
// still running.
func (o *Output[T]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == stateFailed {
		return o.err
	}
	return nil
}

// Completed reports whether the output ended normally.
func (o *Output[T]) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == stateCompleted
}

// Done is closed when the drain loop has exited.
func (o *Output[T]) Done() <-chan struct{} {
	return o.done
}

// Close stops consumption. A running output fails with ErrClosed and the
// in-flight producer is cancelled. Closing a finished output is a no-op.
func (o *Output[T]) Close() {
	o.fail(ErrClosed)
}

// All returns an iterator over the remaining values. A failure is yielded
// once as the final pair. Breaking out of the loop closes the output.
func (o *Output[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for o.Next() {
			if !yield(o.current, nil) {
				o.Close()
				return
			}
		}
		if err := o.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

func (o *Output[T]) fail(err error) bool {
	o.mu.Lock()
	if o.state != stateRunning {
		o.mu.Unlock()
		return false
	}
	o.state = stateFailed
	o.err = err
	close(o.failed)
	o.mu.Unlock()

	o.cancel(err)
	return true
}

func (o *Output[T]) finish() {
	o.mu.Lock()
	if o.state == stateRunning {
		o.state = stateCompleted
	}
	o.mu.Unlock()

	close(o.items)
	close(o.done)
	o.cancel(nil)
}
