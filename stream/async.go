// File: stream/async.go
// Author: momentics <momentics@gmail.com>
//
// Reactor-completed call path: pending operations and their trampolines.

package stream

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/internal/sysfd"
)

// pendingOp is an outstanding asynchronous request. abort completes it with
// err unless it already completed.
type pendingOp interface {
	abort(err error)
}

// opSources tracks the reactor registrations of one operation and
// guarantees a single completion.
type opSources struct {
	done atomic.Bool

	mu       sync.Mutex
	ids      []api.SourceID
	finished bool
}

// add records id. If the operation finished before the registration
// call returned, the registration is removed right away.
func (o *opSources) add(r api.Reactor, id api.SourceID) {
	o.mu.Lock()
	o.ids = append(o.ids, id)
	finished := o.finished
	o.mu.Unlock()
	if finished {
		_ = r.Remove(id)
	}
}

// finish claims the single completion and tears down every registration.
func (o *opSources) finish(r api.Reactor) bool {
	if !o.done.CompareAndSwap(false, true) {
		return false
	}
	o.mu.Lock()
	o.finished = true
	ids := o.ids
	o.ids = nil
	o.mu.Unlock()
	for _, id := range ids {
		_ = r.Remove(id)
	}
	return true
}

type writeOp struct {
	opSources
	s        *Stream
	buf      []byte
	cb       api.WriteCallback
	userData any
	c        api.Canceller
}

// onReady runs on the reactor goroutine when the descriptor is writable,
// reports an error condition, or the cancellation descriptor fired.
func (op *writeOp) onReady(api.IOEvents) bool {
	if op.done.Load() {
		return false
	}
	s := op.s
	if s.IsClosed() {
		op.complete(-1, api.ErrClosed)
		return false
	}
	for {
		if api.Cancelled(op.c) {
			op.complete(-1, api.ErrCancelled)
			return false
		}
		n, err := s.sys.Write(s.fd, op.buf)
		switch {
		case err == nil:
			op.complete(n, nil)
			return false
		case sysfd.Interrupted(err):
			continue
		case sysfd.IsWouldBlock(err):
			// spurious readiness: stay armed
			return true
		default:
			op.complete(-1, api.NewIOError("write", err))
			return false
		}
	}
}

func (op *writeOp) abort(err error) { op.complete(-1, err) }

func (op *writeOp) complete(n int, err error) {
	s := op.s
	if !op.finish(s.reactor) {
		return
	}
	s.forget(op)
	if err != nil {
		s.recordErr("write_async", err)
	} else {
		s.recordWrite(n, len(op.buf))
	}
	s.metrics.Inc(control.MetricAsyncCompleted)
	op.cb(s, op.buf, len(op.buf), n, op.userData, err)
}

type closeOp struct {
	opSources
	s        *Stream
	cb       api.CloseCallback
	userData any
	run      func(op *closeOp) error
}

func (op *closeOp) onIdle() bool {
	if op.done.Load() {
		return false
	}
	err := op.run(op)
	op.complete(err)
	return false
}

func (op *closeOp) abort(err error) { op.complete(err) }

func (op *closeOp) complete(err error) {
	s := op.s
	if !op.finish(s.reactor) {
		return
	}
	s.forget(op)
	if err != nil && err != api.ErrUnsupported {
		s.recordErr("close_async", err)
	}
	s.metrics.Inc(control.MetricAsyncCompleted)
	op.cb(s, err == nil, op.userData, err)
}

// WriteAsync writes p once the descriptor is writable, then calls cb on the
// reactor goroutine with the byte count, or -1 and the error. When c has a
// wait descriptor, cancellation wakes the operation even if the descriptor
// never becomes writable. p must stay valid and unmodified until cb runs.
// priority orders dispatch within one reactor pass only.
//
// A non-nil return means nothing was registered and cb will not be called.
func (s *Stream) WriteAsync(p []byte, priority int, cb api.WriteCallback, userData any, c api.Canceller) error {
	if cb == nil {
		return ErrNilCallback
	}
	if s.reactor == nil {
		return ErrNoReactor
	}
	op := &writeOp{s: s, buf: p, cb: cb, userData: userData, c: c}
	if s.IsClosed() {
		return s.deferred(op, priority, func() { op.complete(-1, api.ErrClosed) })
	}

	s.track(op)
	id, err := s.reactor.WatchFD(s.fd, api.EventWrite, priority, op.onReady)
	if err != nil {
		s.forget(op)
		return err
	}
	op.add(s.reactor, id)

	if cfd := s.cancelFD(c); cfd >= 0 {
		cid, err := s.reactor.WatchFD(cfd, api.EventRead, priority, op.onReady)
		if err != nil {
			s.log.Debug().Err(err).Log("stream: cancellation watch not registered")
		} else {
			op.add(s.reactor, cid)
		}
	}
	// a stream closed concurrently may have missed op while disowning
	if s.IsClosed() {
		s.disownPending(nil)
	}
	return nil
}

// FlushAsync reports api.ErrUnsupported through cb: fd streams keep no
// buffer to flush. Delivery follows the same deferred, exactly-once rule as
// every other asynchronous operation.
func (s *Stream) FlushAsync(priority int, cb api.CloseCallback, userData any, c api.Canceller) error {
	if cb == nil {
		return ErrNilCallback
	}
	if s.reactor == nil {
		return ErrNoReactor
	}
	op := &closeOp{s: s, cb: cb, userData: userData, run: func(*closeOp) error {
		return api.ErrUnsupported
	}}
	return s.deferred(op, priority, func() { op.onIdle() })
}

// CloseAsync closes the stream from the reactor's idle queue, since
// closability is not a readiness condition. c is accepted and ignored: once
// scheduled, close always runs to completion.
func (s *Stream) CloseAsync(priority int, cb api.CloseCallback, userData any, c api.Canceller) error {
	if cb == nil {
		return ErrNilCallback
	}
	if s.reactor == nil {
		return ErrNoReactor
	}
	op := &closeOp{s: s, cb: cb, userData: userData, run: func(op *closeOp) error {
		if !s.st.closed.CompareAndSwap(false, true) {
			return api.ErrClosed
		}
		s.disownPending(op)
		return s.closeFD()
	}}
	s.track(op)
	id, err := s.reactor.AddIdle(priority, op.onIdle)
	if err != nil {
		s.forget(op)
		return err
	}
	op.add(s.reactor, id)
	return nil
}

// deferred completes op from an idle source via fn.
func (s *Stream) deferred(op interface {
	pendingOp
	add(api.Reactor, api.SourceID)
}, priority int, fn func()) error {
	id, err := s.reactor.AddIdle(priority, func() bool {
		fn()
		return false
	})
	if err != nil {
		return err
	}
	op.add(s.reactor, id)
	return nil
}

func (s *Stream) track(op pendingOp) {
	s.mu.Lock()
	s.pending[op] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) forget(op pendingOp) {
	s.mu.Lock()
	delete(s.pending, op)
	s.mu.Unlock()
}

// disownPending completes every tracked operation other than self with
// api.ErrClosed. Completion is marshaled onto the reactor so callbacks stay
// deferred. If the reactor no longer accepts work, the operations are
// disowned along with the rest of its sources.
func (s *Stream) disownPending(self pendingOp) {
	s.mu.Lock()
	ops := make([]pendingOp, 0, len(s.pending))
	for op := range s.pending {
		if op != self {
			ops = append(ops, op)
			delete(s.pending, op)
		}
	}
	s.mu.Unlock()
	if len(ops) == 0 || s.reactor == nil {
		return
	}
	if err := s.reactor.Submit(func() {
		for _, op := range ops {
			op.abort(api.ErrClosed)
		}
	}); err != nil {
		s.log.Info().Int("operations", len(ops)).Err(err).Log("stream: pending operations disowned")
	}
}
