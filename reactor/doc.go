// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded event reactor that completes
// asynchronous stream operations.
//
// One goroutine, the one calling Run, owns the source table, the idle queue
// and the epoll interest set. Every registration change requested through
// the public API is marshaled onto that goroutine via Submit, so callbacks
// are never invoked from inside the call that registered them.
//
// Two kinds of source exist: readiness sources bound to a descriptor and an
// event mask, and idle sources that fire on the next pass with no readiness
// precondition. A callback returning false removes its source, and a removed
// source is never dispatched again, however often the kernel reports the
// descriptor ready. The implementation is Linux-only (epoll, eventfd).
package reactor
