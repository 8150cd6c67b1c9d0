// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities shared by the blocking and
// asynchronous stream paths.

package api

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Common errors used across the library.
var (
	ErrCancelled         = errors.New("operation was cancelled")
	ErrClosed            = errors.New("stream is closed")
	ErrUnsupported       = errors.New("operation not supported")
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrAlreadySubscribed = errors.New("device events already subscribed")
)

// ErrorCode classifies an error for callers sharing handling logic between
// call paths.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeCancelled
	CodeIO
	CodeClosed
	CodeUnsupported
	CodeNotFound
	CodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeCancelled:
		return "cancelled"
	case CodeIO:
		return "io"
	case CodeClosed:
		return "closed"
	case CodeUnsupported:
		return "unsupported"
	case CodeNotFound:
		return "not-found"
	default:
		return "internal"
	}
}

// IOError carries the OS error code of a failed syscall verbatim.
type IOError struct {
	Op   string
	Code unix.Errno
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code.Error())
}

// Unwrap exposes the errno, so errors.Is(err, unix.EBADF) holds.
func (e *IOError) Unwrap() error { return e.Code }

// NewIOError builds an IOError from a syscall error. Errors that are not an
// errno are reported as EIO.
func NewIOError(op string, err error) *IOError {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		errno = unix.EIO
	}
	return &IOError{Op: op, Code: errno}
}

// IsIOError returns the IOError in err's chain, if any.
func IsIOError(err error) (*IOError, bool) {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return ioErr, true
	}
	return nil, false
}

// Code maps err onto the error taxonomy.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	if _, ok := IsIOError(err); ok {
		return CodeIO
	}
	return CodeInternal
}
