// Package queue sequences a dynamically growing list of producers into one
// ordered, backpressured output.
//
// Work is added as factories: zero-argument functions that create a Producer
// only when the queue reaches them. Queued factories stay inert, so at most one
// producer is ever running. Factories may be enqueued at any time, including
// while the output is being consumed, which is what lets a paginated fetch
// discover its next page mid-stream.
//
// # Basic Usage
//
//	q := queue.New[string]()
//	q.Enqueue(func(ctx context.Context) (queue.Producer[string], error) {
//		return queue.Values("a", "b"), nil
//	})
//	q.RegisterTransform(func(p queue.Producer[string]) queue.Producer[string] {
//		return p // wrap, observe or replace the producer
//	})
//
//	out := q.Output(ctx)
//	for out.Next() {
//		fmt.Println(out.Item())
//	}
//	if err := out.Err(); err != nil {
//		return err
//	}
//
// # Draining
//
// The first call to Output starts a single drain goroutine. It pops the next
// factory, invokes it, applies every registered transform in registration
// order and pipes the result into the output. When the producer returns, the
// loop pops the next factory. When no factory is pending the output completes.
// The loop is iterative, so arbitrarily long paginations never grow the stack.
//
// # Errors
//
// RaiseError fails the output immediately, whichever producer is running. The
// running producer's context is cancelled with the error as its cause and no
// further factory is dequeued. An output surfaces at most one error and never
// reports completion after failing.
//
// The output is unbuffered: a value is delivered when the consumer takes it.
// Consumers must either drain the output or call Close.
package queue
