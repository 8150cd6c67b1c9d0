// File: internal/sysfd/sysfd.go
// Author: momentics <momentics@gmail.com>
//
// Package sysfd is the syscall seam used by streams and the readiness
// multiplexer. Tests substitute a recording implementation.

package sysfd

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Syscalls is the set of descriptor syscalls the stream core issues.
type Syscalls interface {
	Write(fd int, p []byte) (int, error)
	Close(fd int) error
	Poll(fds []unix.PollFd, timeout int) (int, error)
}

// Unix issues real syscalls.
var Unix Syscalls = unixSyscalls{}

type unixSyscalls struct{}

func (unixSyscalls) Write(fd int, p []byte) (int, error) { return unix.Write(fd, p) }

func (unixSyscalls) Close(fd int) error { return unix.Close(fd) }

func (unixSyscalls) Poll(fds []unix.PollFd, timeout int) (int, error) {
	return unix.Poll(fds, timeout)
}

// Interrupted reports a transient signal interruption.
func Interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// IsWouldBlock reports EAGAIN/EWOULDBLOCK.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}
