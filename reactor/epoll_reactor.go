//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/internal/logging"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// source is one registration. Fields other than id, fd, events, priority
// and the callbacks are owned by the reactor goroutine.
type source struct {
	id       api.SourceID
	fd       int // -1 for idle sources
	events   api.IOEvents
	priority int
	onReady  api.SourceFunc
	onIdle   api.IdleFunc

	seq     uint64
	removed bool
}

// fdWatch aggregates every source watching one descriptor.
type fdWatch struct {
	sources []*source
	mask    api.IOEvents // interest registered with epoll
	forced  api.IOEvents // reported every pass when epoll refused the fd
}

type readySource struct {
	src    *source
	events api.IOEvents
}

// Reactor implements api.Reactor using Linux epoll.
type Reactor struct {
	epfd    int
	wakeFD  int
	log     *logging.Logger
	metrics *control.MetricsRegistry

	mu          sync.Mutex // guards ingress and fdsClosed
	ingress     *queue.Queue
	fdsClosed   bool
	wakePending atomic.Bool
	state       atomic.Int32
	stopReq     atomic.Bool
	nextID      atomic.Uint64
	releaseOnce sync.Once
	releaseErr  error
	done        chan struct{}

	// Owned by the reactor goroutine.
	sources map[api.SourceID]*source
	fds     map[int]*fdWatch
	forced  int
	idle    *queue.Queue
	events  []unix.EpollEvent
	batch   []readySource
	tasks   []func()
	seq     uint64

	live    atomic.Int64
	watched atomic.Int64
}

var _ api.Reactor = (*Reactor)(nil)

// New creates an epoll instance and its wake-up eventfd. Call Run to start
// dispatching and Close to release the descriptors.
func New(cfg *Config) (*Reactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultConfig().MaxEvents
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add: %w", err)
	}

	return &Reactor{
		epfd:    epfd,
		wakeFD:  wakeFD,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		ingress: queue.New(),
		done:    make(chan struct{}),
		sources: make(map[api.SourceID]*source),
		fds:     make(map[int]*fdWatch),
		idle:    queue.New(),
		events:  make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Submit queues fn for execution on the reactor goroutine. Tasks run in
// submission order at the start of the next pass. Submit is safe for
// concurrent use, including from reactor callbacks.
func (r *Reactor) Submit(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	r.mu.Lock()
	if r.state.Load() == stateStopped || r.fdsClosed {
		r.mu.Unlock()
		return ErrStopped
	}
	r.ingress.Add(fn)
	r.mu.Unlock()
	r.wake()
	return nil
}

// WatchFD registers a readiness source. EventError and EventHangup are
// always reported, whatever events asks for.
func (r *Reactor) WatchFD(fd int, events api.IOEvents, priority int, cb api.SourceFunc) (api.SourceID, error) {
	switch {
	case fd < 0:
		return 0, ErrInvalidFD
	case cb == nil:
		return 0, ErrNilCallback
	case events&(api.EventRead|api.EventWrite) == 0:
		return 0, ErrNoEvents
	}
	src := &source{
		id:       api.SourceID(r.nextID.Add(1)),
		fd:       fd,
		events:   events & (api.EventRead | api.EventWrite),
		priority: priority,
		onReady:  cb,
	}
	if err := r.Submit(func() { r.attach(src) }); err != nil {
		return 0, err
	}
	return src.id, nil
}

// AddIdle registers an idle source.
func (r *Reactor) AddIdle(priority int, cb api.IdleFunc) (api.SourceID, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}
	src := &source{
		id:       api.SourceID(r.nextID.Add(1)),
		fd:       -1,
		priority: priority,
		onIdle:   cb,
	}
	if err := r.Submit(func() { r.attach(src) }); err != nil {
		return 0, err
	}
	return src.id, nil
}

// Remove tears down a registration on the reactor goroutine. Sources that
// already finished, or were never attached, are ignored.
func (r *Reactor) Remove(id api.SourceID) error {
	if id == 0 {
		return nil
	}
	return r.Submit(func() {
		if s := r.sources[id]; s != nil {
			r.detach(s)
		}
	})
}

// Run dispatches sources until ctx is done or Stop is called. Sources still
// registered when Run returns are disowned: their callbacks never fire.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(stateIdle, stateRunning) {
		if r.state.Load() == stateStopped {
			return ErrStopped
		}
		return ErrAlreadyRunning
	}
	defer close(r.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	r.log.Debug().Log("reactor started")
	for !r.stopReq.Load() {
		if err := r.iterate(); err != nil {
			r.log.Err().Err(err).Log("reactor: poll failed")
			r.shutdown()
			return err
		}
	}
	r.shutdown()
	r.log.Debug().Log("reactor stopped")
	return ctx.Err()
}

// Stop asks Run to return after the current pass. It does not wait.
func (r *Reactor) Stop() {
	r.stopReq.Store(true)
	r.wake()
}

// Close stops the reactor, waits for Run to return and releases the epoll
// and wake-up descriptors. It is idempotent and must not be called from a
// reactor callback.
func (r *Reactor) Close() error {
	r.Stop()
	if r.state.CompareAndSwap(stateIdle, stateStopped) {
		// Run never started and now never will
		close(r.done)
	}
	<-r.done
	return r.release()
}

// Done is closed when Run returns.
func (r *Reactor) Done() <-chan struct{} { return r.done }

// Pending returns the number of live registrations.
func (r *Reactor) Pending() int { return int(r.live.Load()) }

// Stats is a point-in-time view of the reactor.
type Stats struct {
	Sources    int64
	WatchedFDs int64
	Running    bool
}

// Stats returns a snapshot safe to take from any goroutine.
func (r *Reactor) Stats() Stats {
	return Stats{
		Sources:    r.live.Load(),
		WatchedFDs: r.watched.Load(),
		Running:    r.state.Load() == stateRunning,
	}
}

// RegisterProbes exposes Stats through dp.
func (r *Reactor) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("reactor.sources", func() any { return r.live.Load() })
	dp.RegisterProbe("reactor.watched_fds", func() any { return r.watched.Load() })
	dp.RegisterProbe("reactor.running", func() any { return r.state.Load() == stateRunning })
}

func (r *Reactor) wake() {
	if !r.wakePending.CompareAndSwap(false, true) {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fdsClosed {
		return
	}
	for {
		_, err := unix.Write(r.wakeFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil && err != unix.EAGAIN {
			r.wakePending.Store(false)
		}
		return
	}
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFD, buf[:])
		if err != unix.EINTR {
			break
		}
	}
	r.wakePending.Store(false)
}

// iterate runs one pass: queued tasks, one epoll_wait, then every ready
// readiness source and every idle source queued before the pass, in
// priority order.
func (r *Reactor) iterate() error {
	r.drainIngress()
	if r.stopReq.Load() {
		return nil
	}

	timeout := -1
	if r.idle.Length() > 0 || r.forced > 0 || r.ingressLen() > 0 {
		timeout = 0
	}
	n, err := unix.EpollWait(r.epfd, r.events, timeout)
	if err != nil {
		if err != unix.EINTR {
			return fmt.Errorf("epoll wait: %w", err)
		}
		n = 0
	}

	batch := r.batch[:0]
	for i := 0; i < n; i++ {
		fd := int(r.events[i].Fd)
		if fd == r.wakeFD {
			r.drainWake()
			continue
		}
		if w := r.fds[fd]; w != nil {
			batch = w.collect(batch, epollToEvents(r.events[i].Events))
		}
	}
	if r.forced > 0 {
		for _, w := range r.fds {
			if w.forced != 0 {
				batch = w.collect(batch, w.forced)
			}
		}
	}
	for i, idle := 0, r.idle.Length(); i < idle; i++ {
		s := r.idle.Remove().(*source)
		if !s.removed {
			batch = append(batch, readySource{src: s})
		}
	}

	sort.SliceStable(batch, func(i, j int) bool {
		a, b := batch[i].src, batch[j].src
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.seq < b.seq
	})
	for i := range batch {
		r.dispatch(batch[i])
		batch[i] = readySource{}
	}
	r.batch = batch[:0]
	return nil
}

func (w *fdWatch) collect(batch []readySource, ev api.IOEvents) []readySource {
	for _, s := range w.sources {
		if got := ev & (s.events | api.EventError | api.EventHangup); got != 0 {
			batch = append(batch, readySource{src: s, events: got})
		}
	}
	return batch
}

func (r *Reactor) dispatch(rs readySource) {
	s := rs.src
	if s.removed {
		return
	}
	keep := r.invoke(rs)
	r.metrics.Inc(control.MetricDispatches)
	if s.removed {
		return
	}
	if !keep {
		r.detach(s)
		return
	}
	if s.fd < 0 {
		r.idle.Add(s)
	}
}

func (r *Reactor) invoke(rs readySource) (keep bool) {
	defer func() {
		if p := recover(); p != nil {
			keep = false
			r.metrics.Inc(control.MetricPanics)
			r.log.Warning().
				Uint64("source", uint64(rs.src.id)).
				Any("panic", p).
				Log("reactor: recovered panic in source callback")
		}
	}()
	if rs.src.onIdle != nil {
		return rs.src.onIdle()
	}
	return rs.src.onReady(rs.events)
}

func (r *Reactor) drainIngress() {
	r.mu.Lock()
	tasks := r.tasks[:0]
	for r.ingress.Length() > 0 {
		tasks = append(tasks, r.ingress.Remove().(func()))
	}
	r.mu.Unlock()
	for i, fn := range tasks {
		r.runTask(fn)
		tasks[i] = nil
	}
	r.tasks = tasks[:0]
}

func (r *Reactor) runTask(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.Inc(control.MetricPanics)
			r.log.Warning().Any("panic", p).Log("reactor: recovered panic in submitted task")
		}
	}()
	fn()
}

func (r *Reactor) ingressLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ingress.Length()
}

func (r *Reactor) attach(s *source) {
	r.seq++
	s.seq = r.seq
	r.sources[s.id] = s
	r.live.Add(1)
	r.metrics.Inc(control.MetricSourcesAdded)
	if s.fd < 0 {
		r.idle.Add(s)
		return
	}
	w := r.fds[s.fd]
	if w == nil {
		w = &fdWatch{}
		r.fds[s.fd] = w
		r.watched.Add(1)
	}
	w.sources = append(w.sources, s)
	r.syncInterest(s.fd, w, true)
	r.log.Trace().
		Uint64("source", uint64(s.id)).
		Int("fd", s.fd).
		Stringer("events", s.events).
		Log("reactor: source attached")
}

func (r *Reactor) detach(s *source) {
	if s.removed {
		return
	}
	s.removed = true
	delete(r.sources, s.id)
	r.live.Add(-1)
	if s.fd < 0 {
		// dropped from the idle queue when next popped
		return
	}
	w := r.fds[s.fd]
	if w == nil {
		return
	}
	for i, o := range w.sources {
		if o == s {
			w.sources = append(w.sources[:i], w.sources[i+1:]...)
			break
		}
	}
	if len(w.sources) > 0 {
		r.syncInterest(s.fd, w, false)
		return
	}
	if w.forced != 0 {
		r.forced--
	} else if w.mask != 0 {
		// ENOENT/EBADF: the descriptor was closed and dropped by the kernel.
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
	}
	delete(r.fds, s.fd)
	r.watched.Add(-1)
}

// syncInterest brings the epoll interest for fd in line with its sources.
// A descriptor epoll refuses is polled every pass instead: regular files
// (EPERM) as always ready, anything else as an error condition.
//
// fresh is set when a source was just attached. The number may then belong
// to a new descriptor that reused it after the old one was closed, which
// the kernel dropped from the epoll set without telling us, so the interest
// is registered again even when the cached mask already matches.
func (r *Reactor) syncInterest(fd int, w *fdWatch, fresh bool) {
	if w.forced != 0 {
		if !fresh {
			return
		}
		w.forced = 0
		w.mask = 0
		r.forced--
	}
	var want api.IOEvents
	for _, s := range w.sources {
		want |= s.events
	}
	if want == w.mask && !fresh {
		return
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(want), Fd: int32(fd)}
	var err error
	if w.mask == 0 {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		if err == unix.EEXIST {
			err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		}
	} else {
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
		if err == unix.ENOENT {
			err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		}
	}
	if err != nil {
		if err == unix.EPERM {
			w.forced = api.EventRead | api.EventWrite
		} else {
			w.forced = api.EventError
		}
		r.forced++
		r.log.Debug().
			Int("fd", fd).
			Err(err).
			Log("reactor: epoll refused descriptor, polling every pass")
	}
	w.mask = want
}

// shutdown disowns every source and rejects further submissions.
func (r *Reactor) shutdown() {
	r.mu.Lock()
	r.state.Store(stateStopped)
	dropped := r.ingress.Length()
	for r.ingress.Length() > 0 {
		r.ingress.Remove()
	}
	r.mu.Unlock()

	if n := len(r.sources); n > 0 || dropped > 0 {
		r.log.Info().
			Int("sources", n).
			Int("tasks", dropped).
			Log("reactor: disowning pending work")
	}
	for _, s := range r.sources {
		s.removed = true
	}
	for fd, w := range r.fds {
		if w.forced == 0 && w.mask != 0 {
			_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		}
	}
	clear(r.sources)
	clear(r.fds)
	r.forced = 0
	for r.idle.Length() > 0 {
		r.idle.Remove()
	}
	r.live.Store(0)
	r.watched.Store(0)
}

func (r *Reactor) release() error {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		r.fdsClosed = true
		r.mu.Unlock()
		err := unix.Close(r.wakeFD)
		if err2 := unix.Close(r.epfd); err == nil {
			err = err2
		}
		r.releaseErr = err
	})
	return r.releaseErr
}

// eventsToEpoll converts IOEvents to epoll event flags.
func eventsToEpoll(events api.IOEvents) uint32 {
	var epollEvents uint32
	if events&api.EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) api.IOEvents {
	var events api.IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= api.EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= api.EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= api.EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= api.EventHangup
	}
	return events
}
