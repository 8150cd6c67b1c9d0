// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package stream implements a cancellable output stream bound to an
// operating-system file descriptor.
//
// Each operation exists in a blocking form (Write, Close) and a
// reactor-completed form (WriteAsync, CloseAsync). Both forms share one
// cancellation contract and one error taxonomy (see package api):
//
//   - a requested cancellation is checked before every write attempt and wins
//     over a write that would otherwise be retried;
//   - EINTR is absorbed and never surfaces;
//   - any other syscall failure surfaces as *api.IOError with the errno kept.
//
// Asynchronous completions are always delivered on the reactor goroutine,
// never from the calling goroutine, and exactly once per call. Closing a
// stream with operations still pending completes them with api.ErrClosed.
//
// Overlapping operations on one stream are not serialized; callers needing
// ordered output must issue one write at a time.
package stream
