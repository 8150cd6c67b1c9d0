// File: api/stream.go
// Author: momentics <momentics@gmail.com>
//
// Capability interface implemented by every output stream kind.

package api

// WriteCallback receives the completion of an asynchronous write. result is
// the number of bytes written, or -1 when err is non-nil. A short write is
// reported with result < requested and a nil err.
type WriteCallback func(s OutputStream, buf []byte, requested int, result int, userData any, err error)

// CloseCallback receives the completion of an asynchronous close or flush.
type CloseCallback func(s OutputStream, ok bool, userData any, err error)

// OutputStream is a cancellable byte sink with blocking and
// reactor-completed call paths sharing one error taxonomy.
type OutputStream interface {
	// Write blocks until the descriptor is writable or c is cancelled, then
	// performs a single write. Short writes are the caller's to resume.
	Write(p []byte, c Canceller) (int, error)

	// Close closes the stream. c is accepted for symmetry and not consulted.
	Close(c Canceller) error

	// WriteAsync completes a write through the reactor. The buffer must stay
	// valid until cb fires. cb fires exactly once, never synchronously.
	WriteAsync(p []byte, priority int, cb WriteCallback, userData any, c Canceller) error

	// FlushAsync is not provided by fd streams and reports ErrUnsupported.
	FlushAsync(priority int, cb CloseCallback, userData any, c Canceller) error

	// CloseAsync completes a close through the reactor's idle queue.
	CloseAsync(priority int, cb CloseCallback, userData any, c Canceller) error
}
