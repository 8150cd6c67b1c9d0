// File: fake/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Manually driven reactor: tests decide when descriptors become ready and
// when idle sources run.

package fake

import (
	"errors"
	"sort"
	"sync"

	"github.com/momentics/hioload-fdstream/api"
)

// ErrReactorClosed is returned by a closed fake Reactor.
var ErrReactorClosed = errors.New("fake: reactor closed")

type source struct {
	id       api.SourceID
	fd       int
	events   api.IOEvents
	priority int
	onIO     api.SourceFunc
	onIdle   api.IdleFunc
}

// Reactor implements api.Reactor without a goroutine. Nothing fires until
// the test calls Fire, RunIdle, RunTasks or Step.
type Reactor struct {
	mu      sync.Mutex
	nextID  api.SourceID
	sources map[api.SourceID]*source
	tasks   []func()
	closed  bool
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor returns an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{sources: make(map[api.SourceID]*source)}
}

// Submit queues fn until the next RunTasks.
func (r *Reactor) Submit(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReactorClosed
	}
	r.tasks = append(r.tasks, fn)
	return nil
}

// WatchFD records a readiness source.
func (r *Reactor) WatchFD(fd int, events api.IOEvents, priority int, cb api.SourceFunc) (api.SourceID, error) {
	return r.add(&source{fd: fd, events: events, priority: priority, onIO: cb})
}

// AddIdle records an idle source.
func (r *Reactor) AddIdle(priority int, cb api.IdleFunc) (api.SourceID, error) {
	return r.add(&source{fd: -1, priority: priority, onIdle: cb})
}

func (r *Reactor) add(src *source) (api.SourceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrReactorClosed
	}
	r.nextID++
	src.id = r.nextID
	r.sources[src.id] = src
	return src.id, nil
}

// Remove drops a source. Unknown ids are ignored.
func (r *Reactor) Remove(id api.SourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, id)
	return nil
}

// Close makes every later registration fail and drops all sources.
func (r *Reactor) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.sources = make(map[api.SourceID]*source)
	r.tasks = nil
}

// snapshot returns matching sources in dispatch order.
func (r *Reactor) snapshot(match func(*source) bool) []*source {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*source
	for _, src := range r.sources {
		if match(src) {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].id < out[j].id
	})
	return out
}

func (r *Reactor) live(id api.SourceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sources[id]
	return ok
}

// Fire reports events on fd to every source watching it and returns the
// number of callbacks invoked. Error and hangup reach every source.
func (r *Reactor) Fire(fd int, events api.IOEvents) int {
	const always = api.EventError | api.EventHangup
	srcs := r.snapshot(func(s *source) bool {
		return s.onIO != nil && s.fd == fd && (s.events|always)&events != 0
	})
	var n int
	for _, src := range srcs {
		if !r.live(src.id) {
			continue
		}
		n++
		if !src.onIO((src.events | always) & events) {
			_ = r.Remove(src.id)
		}
	}
	return n
}

// RunIdle runs the idle sources registered before the call once.
func (r *Reactor) RunIdle() int {
	srcs := r.snapshot(func(s *source) bool { return s.onIdle != nil })
	var n int
	for _, src := range srcs {
		if !r.live(src.id) {
			continue
		}
		n++
		if !src.onIdle() {
			_ = r.Remove(src.id)
		}
	}
	return n
}

// RunTasks runs submitted functions until the queue is empty.
func (r *Reactor) RunTasks() int {
	var n int
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return n
		}
		fn := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		fn()
		n++
	}
}

// Step runs queued tasks and then one idle pass.
func (r *Reactor) Step() {
	r.RunTasks()
	r.RunIdle()
}

// Sources returns the number of live registrations.
func (r *Reactor) Sources() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// Tasks returns the number of submitted functions not yet run.
func (r *Reactor) Tasks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Watching returns the number of readiness sources on fd.
func (r *Reactor) Watching(fd int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, src := range r.sources {
		if src.onIO != nil && src.fd == fd {
			n++
		}
	}
	return n
}
