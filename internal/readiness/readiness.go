// File: internal/readiness/readiness.go
// Author: momentics <momentics@gmail.com>
//
// Package readiness composes an I/O descriptor and a cancellation wait
// descriptor into one blocking poll(2) call.

package readiness

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/internal/sysfd"
)

// Result reports which side of the wait fired.
type Result struct {
	Ready     bool // fd reported the requested condition (or an error/hangup)
	Cancelled bool // cancelFD became readable
}

// WaitWritable blocks until fd is writable or cancelFD is readable. With no
// cancellation descriptor (cancelFD < 0) it returns immediately and the
// caller goes straight to the syscall, which blocks on its own.
func WaitWritable(sys sysfd.Syscalls, fd, cancelFD int) (Result, error) {
	return wait(sys, fd, unix.POLLOUT, cancelFD)
}

func wait(sys sysfd.Syscalls, fd int, events int16, cancelFD int) (Result, error) {
	if cancelFD < 0 {
		return Result{Ready: true}, nil
	}
	fds := []unix.PollFd{
		{Fd: int32(fd), Events: events},
		{Fd: int32(cancelFD), Events: unix.POLLIN},
	}
	for {
		_, err := sys.Poll(fds, -1)
		if err == nil {
			break
		}
		if sysfd.Interrupted(err) {
			fds[0].Revents, fds[1].Revents = 0, 0
			continue
		}
		return Result{}, api.NewIOError("poll", err)
	}
	return Result{
		Ready:     fds[0].Revents != 0,
		Cancelled: fds[1].Revents&unix.POLLIN != 0,
	}, nil
}
