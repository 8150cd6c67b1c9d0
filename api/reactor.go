// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface of the single-threaded event reactor that
// completes asynchronous stream operations.

package api

// Reactor multiplexes readiness and idle sources on one goroutine.
//
// Every method is safe to call from any goroutine: registration changes are
// marshaled onto the reactor goroutine, so a callback never runs inside the
// call that registered it.
type Reactor interface {
	// Submit queues fn for execution on the reactor goroutine.
	Submit(fn func()) error

	// WatchFD registers cb to fire when fd reports any of events.
	WatchFD(fd int, events IOEvents, priority int, cb SourceFunc) (SourceID, error)

	// AddIdle registers cb to fire on the next dispatch pass.
	AddIdle(priority int, cb IdleFunc) (SourceID, error)

	// Remove tears down a registration. Removing a source that already
	// finished is a no-op.
	Remove(id SourceID) error
}
