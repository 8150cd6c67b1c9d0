//go:build linux

// File: stream/reactor_test.go
// Author: momentics <momentics@gmail.com>

package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/cancel"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/reactor"
)

func startReactor(t *testing.T) *reactor.Reactor {
	t.Helper()
	r, err := reactor.New(nil)
	require.NoError(t, err)
	go func() { _ = r.Run(context.Background()) }()
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()
	v, err := Await(ctx, ch)
	require.NoError(t, err)
	return v
}

// TestAsyncPipeLifeCycle tests async write and close against epoll.
func TestAsyncPipeLifeCycle(t *testing.T) {
	r := startReactor(t)
	rfd, w := pipe(t)
	s := New(w, true, WithReactor(r))

	ch, err := s.WriteFuture([]byte("hello"), api.PriorityDefault, nil)
	require.NoError(t, err)
	res := await(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, 5, res.N)
	assert.Equal(t, []byte("hello"), readAll(t, rfd, 16))

	cch, err := s.CloseFuture(api.PriorityDefaultIdle)
	require.NoError(t, err)
	require.NoError(t, await(t, cch))
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)
}

// TestCallbackNeverRunsInsideCall tests deferred delivery on a real reactor.
func TestCallbackNeverRunsInsideCall(t *testing.T) {
	r := startReactor(t)
	_, w := pipe(t)
	s := New(w, true, WithReactor(r))
	defer s.Close(nil)

	var inCall atomic.Bool
	done := make(chan bool, 3)
	inCall.Store(true)
	require.NoError(t, s.WriteAsync([]byte("x"), 0, func(api.OutputStream, []byte, int, int, any, error) {
		done <- inCall.Load()
	}, nil, nil))
	require.NoError(t, s.FlushAsync(0, func(api.OutputStream, bool, any, error) {
		done <- inCall.Load()
	}, nil, nil))
	inCall.Store(false)

	for i := 0; i < 2; i++ {
		assert.False(t, await(t, done))
	}
}

func TestAsyncCancelOnFullPipe(t *testing.T) {
	r := startReactor(t)
	_, w := pipe(t)
	s := New(w, true, WithReactor(r))
	defer s.Close(nil)
	fill(t, w)

	tok := cancel.New()
	defer tok.Release()
	ch, err := s.WriteFuture([]byte("blocked"), 0, tok)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("write completed on a full pipe")
	default:
	}
	tok.Cancel()
	res := await(t, ch)
	assert.Equal(t, -1, res.N)
	assert.ErrorIs(t, res.Err, api.ErrCancelled)
}

// TestReadyAndCancelledSamePass tests that an operation whose descriptor
// and cancellation source fire together completes once, as cancelled.
func TestReadyAndCancelledSamePass(t *testing.T) {
	r := startReactor(t)
	_, w := pipe(t)
	s := New(w, true, WithReactor(r))
	defer s.Close(nil)
	tok := cancel.New()
	defer tok.Release()
	tok.Cancel()

	var calls atomic.Int32
	results := make(chan error, 4)
	require.NoError(t, s.WriteAsync([]byte("x"), 0, func(_ api.OutputStream, _ []byte, _, _ int, _ any, err error) {
		calls.Add(1)
		results <- err
	}, nil, tok))

	assert.ErrorIs(t, await(t, results), api.ErrCancelled)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Eventually(t, func() bool { return r.Pending() == 0 }, 5*time.Second, time.Millisecond)
}

func TestAsyncCloseInvalidDescriptor(t *testing.T) {
	r := startReactor(t)
	s := New(badFD, true, WithReactor(r))

	ch, err := s.CloseFuture(0)
	require.NoError(t, err)
	err = await(t, ch)
	ioErr, ok := api.IsIOError(err)
	require.True(t, ok)
	assert.Equal(t, unix.EBADF, ioErr.Code)
}

func TestCloseWakesPendingWrite(t *testing.T) {
	r := startReactor(t)
	_, w := pipe(t)
	s := New(w, true, WithReactor(r))
	fill(t, w)

	ch, err := s.WriteFuture([]byte("blocked"), 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close(nil))
	res := await(t, ch)
	assert.ErrorIs(t, res.Err, api.ErrClosed)
	assert.Eventually(t, func() bool { return r.Pending() == 0 }, 5*time.Second, time.Millisecond)
}

func TestConcurrentWriters(t *testing.T) {
	m := control.NewMetricsRegistry()
	r := startReactor(t)
	rfd, w := pipe(t)
	s := New(w, true, WithReactor(r), WithMetrics(m))
	defer s.Close(nil)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 16; j++ {
				ch, err := s.WriteFuture([]byte("ab"), 0, nil)
				if err != nil {
					return err
				}
				ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
				res, err := Await(ctx, ch)
				cancelCtx()
				if err != nil {
					return err
				}
				if res.Err != nil {
					return res.Err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for j := 0; j < 8*16; j++ {
			if _, err := s.Write([]byte("cd"), nil); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	var total int
	buf := make([]byte, 4096)
	for total < 8*16*4 {
		n, err := unix.Read(rfd, buf)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 8*16*4, total)
	assert.Equal(t, int64(8*16*2), m.Get(control.MetricWrites))
	assert.Equal(t, int64(8*16), m.Get(control.MetricAsyncCompleted))
}
