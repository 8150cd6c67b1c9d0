// Package api
// Author: momentics <momentics@gmail.com>
//
// Cooperative cancellation contract shared by blocking and asynchronous calls.

package api

// Canceller is the view of a cancellation token consumed by stream
// operations. A nil Canceller is never cancelled.
type Canceller interface {
	// IsCancelled reports whether cancellation was requested.
	IsCancelled() bool

	// FD returns a descriptor that becomes readable once cancellation is
	// requested, or -1 if the token has no wait descriptor.
	FD() (int, error)
}

// Cancelled reports whether c is non-nil and cancelled.
func Cancelled(c Canceller) bool {
	return c != nil && c.IsCancelled()
}
