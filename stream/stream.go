// File: stream/stream.go
// Author: momentics <momentics@gmail.com>
//
// Stream type and the blocking call path.

package stream

import (
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/internal/logging"
	"github.com/momentics/hioload-fdstream/internal/readiness"
	"github.com/momentics/hioload-fdstream/internal/sysfd"
)

// Construction and registration errors.
var (
	ErrNoReactor   = errors.New("stream: no reactor configured")
	ErrNilCallback = errors.New("stream: nil completion callback")
)

// fdState is shared with the cleanup attached to a Stream, so it must not
// point back at the Stream.
type fdState struct {
	closed atomic.Bool
}

// Stream is an output stream over a file descriptor. It implements
// api.OutputStream.
type Stream struct {
	fd      int
	ownsFD  bool
	st      *fdState
	sys     sysfd.Syscalls
	reactor api.Reactor
	log     *logging.Logger
	metrics *control.MetricsRegistry

	mu      sync.Mutex
	pending map[pendingOp]struct{}
}

var _ api.OutputStream = (*Stream)(nil)

// New wraps fd. When ownsFD is set the descriptor is closed by Close, by
// CloseAsync, or once the Stream becomes unreachable without being closed.
func New(fd int, ownsFD bool, opts ...Option) *Stream {
	s := &Stream{
		fd:      fd,
		ownsFD:  ownsFD,
		st:      &fdState{},
		sys:     sysfd.Unix,
		pending: make(map[pendingOp]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if ownsFD {
		runtime.AddCleanup(s, closeUnreachable, unreachableFD{fd: fd, st: s.st, sys: s.sys})
	}
	return s
}

type unreachableFD struct {
	fd  int
	st  *fdState
	sys sysfd.Syscalls
}

func closeUnreachable(u unreachableFD) {
	if u.st.closed.CompareAndSwap(false, true) {
		_ = u.sys.Close(u.fd)
	}
}

// FD returns the wrapped descriptor.
func (s *Stream) FD() int { return s.fd }

// OwnsFD reports whether closing the stream closes the descriptor.
func (s *Stream) OwnsFD() bool { return s.ownsFD }

// IsClosed reports whether the stream has been closed.
func (s *Stream) IsClosed() bool { return s.st.closed.Load() }

// Write waits until the descriptor is writable or c is cancelled, then
// writes p once. With no cancellation descriptor it goes straight to the
// syscall. The returned count may be less than len(p); resuming is up to
// the caller (see WriteAll).
func (s *Stream) Write(p []byte, c api.Canceller) (int, error) {
	if s.IsClosed() {
		return 0, api.ErrClosed
	}
	if _, err := readiness.WaitWritable(s.sys, s.fd, s.cancelFD(c)); err != nil {
		s.recordErr("write", err)
		return 0, err
	}
	n, err := s.writeOnce(p, c)
	if err != nil {
		s.recordErr("write", err)
		return 0, err
	}
	s.recordWrite(n, len(p))
	return n, nil
}

// WriteAll calls Write until p is exhausted, an error occurs, or a write
// makes no progress. It returns the number of bytes written.
func (s *Stream) WriteAll(p []byte, c api.Canceller) (int, error) {
	var total int
	for total < len(p) {
		n, err := s.Write(p[total:], c)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Close closes the stream. A non-owning stream never touches the
// descriptor. The closed transition happens exactly once: later calls
// return api.ErrClosed without issuing a syscall, including after a failed
// close(2), since the kernel releases the descriptor either way. c is not
// consulted; close is not interruptible. Pending asynchronous operations
// complete with api.ErrClosed; their teardown is queued on the reactor
// before the descriptor number is released for reuse.
func (s *Stream) Close(c api.Canceller) error {
	if !s.st.closed.CompareAndSwap(false, true) {
		return api.ErrClosed
	}
	s.disownPending(nil)
	return s.closeFD()
}

// writeOnce is the cancel/write/retry loop shared by both call paths.
func (s *Stream) writeOnce(p []byte, c api.Canceller) (int, error) {
	for {
		if api.Cancelled(c) {
			return 0, api.ErrCancelled
		}
		n, err := s.sys.Write(s.fd, p)
		if err == nil {
			return n, nil
		}
		if sysfd.Interrupted(err) {
			continue
		}
		return 0, api.NewIOError("write", err)
	}
}

// closeFD issues close(2) for owning streams. EINTR counts as closed: the
// descriptor is already released and must not be closed again.
func (s *Stream) closeFD() error {
	s.metrics.Inc(control.MetricCloses)
	if !s.ownsFD {
		return nil
	}
	err := s.sys.Close(s.fd)
	if err != nil && !sysfd.Interrupted(err) {
		ioErr := api.NewIOError("close", err)
		s.metrics.Inc(control.MetricErrors)
		s.log.Warning().Int("fd", s.fd).Err(ioErr).Log("stream: close failed")
		return ioErr
	}
	s.log.Debug().Int("fd", s.fd).Log("stream: closed")
	return nil
}

// cancelFD resolves the wait descriptor of c, or -1. A token whose
// descriptor cannot be created is still honoured at every loop iteration.
func (s *Stream) cancelFD(c api.Canceller) int {
	if c == nil {
		return -1
	}
	fd, err := c.FD()
	if err != nil {
		s.log.Debug().Err(err).Log("stream: cancellation descriptor unavailable")
		return -1
	}
	return fd
}

func (s *Stream) recordWrite(n, requested int) {
	s.metrics.Inc(control.MetricWrites)
	s.metrics.Add(control.MetricBytesWritten, int64(n))
	if n < requested {
		s.metrics.Inc(control.MetricShortWrites)
	}
}

func (s *Stream) recordErr(op string, err error) {
	if errors.Is(err, api.ErrCancelled) {
		s.metrics.Inc(control.MetricCancelled)
		return
	}
	s.metrics.Inc(control.MetricErrors)
	s.log.Debug().Str("op", op).Int("fd", s.fd).Err(err).Log("stream: operation failed")
}
