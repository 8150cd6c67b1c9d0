// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// IOEvents is a bitmask of readiness conditions on a file descriptor.
type IOEvents uint32

const (
	// EventRead reports that the descriptor is readable.
	EventRead IOEvents = 1 << iota
	// EventWrite reports that the descriptor is writable.
	EventWrite
	// EventError reports an error condition (EPOLLERR).
	EventError
	// EventHangup reports that the peer hung up (EPOLLHUP).
	EventHangup
)

func (e IOEvents) String() string {
	if e == 0 {
		return "none"
	}
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if e&EventRead != 0 {
		add("read")
	}
	if e&EventWrite != 0 {
		add("write")
	}
	if e&EventError != 0 {
		add("error")
	}
	if e&EventHangup != 0 {
		add("hangup")
	}
	return s
}

// Source priorities. Lower values dispatch first within one reactor pass.
const (
	PriorityHigh        = -100
	PriorityDefault     = 0
	PriorityHighIdle    = 100
	PriorityDefaultIdle = 200
	PriorityLow         = 300
)

// SourceID identifies a reactor registration.
type SourceID uint64

// SourceFunc is invoked on the reactor goroutine when a watched descriptor
// becomes ready. Returning false removes the registration.
type SourceFunc func(events IOEvents) bool

// IdleFunc is invoked on the reactor goroutine on a pass with no readiness
// precondition. Returning false removes the registration.
type IdleFunc func() bool
