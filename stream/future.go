// File: stream/future.go
// Author: momentics <momentics@gmail.com>
//
// Channel-based completion for callers that prefer waiting to callbacks.

package stream

import (
	"context"

	"github.com/momentics/hioload-fdstream/api"
)

// WriteResult is the outcome of an asynchronous write.
type WriteResult struct {
	N   int // bytes written, -1 on error
	Err error
}

// WriteFuture is WriteAsync delivering its single result on a channel.
// The channel is buffered and receives exactly one value.
func (s *Stream) WriteFuture(p []byte, priority int, c api.Canceller) (<-chan WriteResult, error) {
	ch := make(chan WriteResult, 1)
	err := s.WriteAsync(p, priority, func(_ api.OutputStream, _ []byte, _ int, n int, _ any, err error) {
		ch <- WriteResult{N: n, Err: err}
	}, nil, c)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// CloseFuture is CloseAsync delivering its single result on a channel.
func (s *Stream) CloseFuture(priority int) (<-chan error, error) {
	ch := make(chan error, 1)
	err := s.CloseAsync(priority, func(_ api.OutputStream, _ bool, _ any, err error) {
		ch <- err
	}, nil, nil)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Await waits for a future result or ctx. Abandoning the wait does not
// cancel the operation; pair ctx with a cancel.Token for that.
func Await[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
