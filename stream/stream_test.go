// File: stream/stream_test.go
// Author: momentics <momentics@gmail.com>

package stream

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/cancel"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/fake"
)

// badFD is a descriptor number no test opens.
const badFD = 1 << 20

// pipe returns a pipe whose write end is left to the caller; the read end
// is closed when the test ends.
func pipe(t *testing.T) (rfd, wfd int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() { _ = unix.Close(p[0]) })
	return p[0], p[1]
}

func readAll(t *testing.T, fd, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	got, err := unix.Read(fd, buf)
	require.NoError(t, err)
	return buf[:got]
}

func fill(t *testing.T, w int) {
	t.Helper()
	buf := make([]byte, 64<<10)
	for {
		_, err := unix.Write(w, buf)
		if err == unix.EAGAIN {
			return
		}
		require.NoError(t, err)
	}
}

// TestWriteToPipe tests the plain write/close life cycle.
func TestWriteToPipe(t *testing.T) {
	r, w := pipe(t)
	s := New(w, true)

	n, err := s.Write([]byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), readAll(t, r, 16))

	require.NoError(t, s.Close(nil))
	assert.True(t, s.IsClosed())
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)

	n, err = s.Write([]byte("x"), nil)
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.Zero(t, n)
}

func TestWriteWithLiveToken(t *testing.T) {
	r, w := pipe(t)
	s := New(w, true)
	defer s.Close(nil)
	tok := cancel.New()
	defer tok.Release()

	n, err := s.Write([]byte("hello"), tok)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), readAll(t, r, 16))
}

// TestCancelledBeforeWrite tests that a cancelled token stops the write
// before any write syscall.
func TestCancelledBeforeWrite(t *testing.T) {
	sys := fake.NewSyscalls()
	s := New(7, false, WithSyscalls(sys))
	tok := cancel.New()
	defer tok.Release()
	tok.Cancel()

	n, err := s.Write([]byte("hello"), tok)
	assert.ErrorIs(t, err, api.ErrCancelled)
	assert.Zero(t, n)
	assert.Zero(t, sys.WriteCount())
	assert.Equal(t, api.CodeCancelled, api.Code(err))
}

func TestCancelWhileBlocked(t *testing.T) {
	_, w := pipe(t)
	s := New(w, true)
	defer s.Close(nil)
	fill(t, w)

	tok := cancel.New()
	defer tok.Release()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := s.Write([]byte("blocked"), tok)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not interrupt the wait")
	}
}

func TestWriteInterruptedIsRetried(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{Err: unix.EINTR}, fake.WriteResult{N: -1})
	s := New(7, false, WithSyscalls(sys))

	n, err := s.Write([]byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 2, sys.WriteCount())
	assert.Equal(t, []byte("hello"), sys.Written())
}

func TestWrappedInterruptIsRetried(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{Err: fmt.Errorf("write: %w", unix.EINTR)}, fake.WriteResult{N: -1})
	sys.ScriptCloses(fmt.Errorf("close: %w", unix.EINTR))
	s := New(7, true, WithSyscalls(sys))

	n, err := s.Write([]byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 2, sys.WriteCount())
	assert.NoError(t, s.Close(nil))
}

func TestInterruptedWriteRechecksCancellation(t *testing.T) {
	sys := fake.NewSyscalls()
	tok := cancel.New()
	defer tok.Release()
	sys.ScriptWrites(fake.WriteResult{Err: unix.EINTR})
	sys.OnWrite(func(int, []byte) { tok.Cancel() })
	s := New(7, false, WithSyscalls(sys))

	_, err := s.Write([]byte("hello"), tok)
	assert.ErrorIs(t, err, api.ErrCancelled)
	assert.Equal(t, 1, sys.WriteCount())
}

func TestShortWrite(t *testing.T) {
	m := control.NewMetricsRegistry()
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{N: 2})
	s := New(7, false, WithSyscalls(sys), WithMetrics(m))

	n, err := s.Write([]byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(1), m.Get(control.MetricShortWrites))
	assert.Equal(t, int64(2), m.Get(control.MetricBytesWritten))
}

func TestWriteAll(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{N: 2}, fake.WriteResult{N: 1}, fake.WriteResult{N: -1})
	s := New(7, false, WithSyscalls(sys))

	n, err := s.WriteAll([]byte("hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, sys.WriteCount())
	assert.Equal(t, []byte("hello"), sys.Written())
}

func TestWriteAllNoProgress(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{N: 1}, fake.WriteResult{N: 0})
	s := New(7, false, WithSyscalls(sys))

	n, err := s.WriteAll([]byte("hello"), nil)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 1, n)
}

func TestWriteError(t *testing.T) {
	m := control.NewMetricsRegistry()
	sys := fake.NewSyscalls()
	sys.ScriptWrites(fake.WriteResult{Err: unix.EPIPE})
	s := New(7, false, WithSyscalls(sys), WithMetrics(m))

	n, err := s.Write([]byte("hello"), nil)
	assert.Zero(t, n)
	ioErr, ok := api.IsIOError(err)
	require.True(t, ok)
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, unix.EPIPE, ioErr.Code)
	assert.ErrorIs(t, err, unix.EPIPE)
	assert.Equal(t, api.CodeIO, api.Code(err))
	assert.Equal(t, int64(1), m.Get(control.MetricErrors))
}

func TestWriteToBrokenPipe(t *testing.T) {
	r, w := pipe(t)
	s := New(w, true)
	defer s.Close(nil)
	require.NoError(t, unix.Close(r))

	_, err := s.Write([]byte("hello"), nil)
	assert.ErrorIs(t, err, unix.EPIPE)
}

// TestNonOwningClose tests that a borrowed descriptor is never closed.
func TestNonOwningClose(t *testing.T) {
	sys := fake.NewSyscalls()
	s := New(7, false, WithSyscalls(sys))
	assert.False(t, s.OwnsFD())

	require.NoError(t, s.Close(nil))
	assert.Empty(t, sys.Closes())
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)
	assert.Empty(t, sys.Closes())
}

func TestOwningCloseOnce(t *testing.T) {
	sys := fake.NewSyscalls()
	s := New(7, true, WithSyscalls(sys))

	require.NoError(t, s.Close(nil))
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)
	assert.Equal(t, []int{7}, sys.Closes())
}

func TestCloseInterruptedCountsAsClosed(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptCloses(unix.EINTR)
	s := New(7, true, WithSyscalls(sys))

	require.NoError(t, s.Close(nil))
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)
	assert.Equal(t, []int{7}, sys.Closes())
}

func TestCloseFailureIsFinal(t *testing.T) {
	sys := fake.NewSyscalls()
	sys.ScriptCloses(unix.EIO)
	s := New(7, true, WithSyscalls(sys))

	err := s.Close(nil)
	ioErr, ok := api.IsIOError(err)
	require.True(t, ok)
	assert.Equal(t, "close", ioErr.Op)
	assert.Equal(t, unix.EIO, ioErr.Code)
	assert.True(t, s.IsClosed())
	assert.ErrorIs(t, s.Close(nil), api.ErrClosed)
	assert.Len(t, sys.Closes(), 1)
}

func TestCloseInvalidDescriptor(t *testing.T) {
	s := New(badFD, true)
	err := s.Close(nil)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestCloseIgnoresCancellation(t *testing.T) {
	sys := fake.NewSyscalls()
	s := New(7, true, WithSyscalls(sys))
	tok := cancel.New()
	tok.Cancel()

	require.NoError(t, s.Close(tok))
	assert.Equal(t, []int{7}, sys.Closes())
}

// TestUnreachableStreamClosesDescriptor tests the cleanup of an owning
// stream dropped without Close.
func TestUnreachableStreamClosesDescriptor(t *testing.T) {
	sys := fake.NewSyscalls()
	func() {
		s := New(9, true, WithSyscalls(sys))
		_, err := s.Write([]byte("x"), nil)
		require.NoError(t, err)
	}()
	assert.Eventually(t, func() bool {
		runtime.GC()
		return slices.Equal(sys.Closes(), []int{9})
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClosedStreamIsNotClosedAgainWhenUnreachable(t *testing.T) {
	sys := fake.NewSyscalls()
	func() {
		s := New(9, true, WithSyscalls(sys))
		require.NoError(t, s.Close(nil))
	}()
	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, []int{9}, sys.Closes())
}

func TestWriteMetrics(t *testing.T) {
	m := control.NewMetricsRegistry()
	sys := fake.NewSyscalls()
	s := New(7, true, WithSyscalls(sys), WithMetrics(m))
	tok := cancel.New()
	defer tok.Release()

	_, err := s.Write([]byte("abc"), nil)
	require.NoError(t, err)
	_, err = s.Write([]byte("de"), nil)
	require.NoError(t, err)
	tok.Cancel()
	_, err = s.Write([]byte("f"), tok)
	require.ErrorIs(t, err, api.ErrCancelled)
	require.NoError(t, s.Close(nil))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap[control.MetricWrites])
	assert.Equal(t, int64(5), snap[control.MetricBytesWritten])
	assert.Equal(t, int64(1), snap[control.MetricCancelled])
	assert.Equal(t, int64(1), snap[control.MetricCloses])
}
