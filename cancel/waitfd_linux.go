//go:build linux

// File: cancel/waitfd_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd(2) backed wait descriptor.

package cancel

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

type waitFD struct {
	fd int
}

func newWaitFD() (*waitFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &waitFD{fd: fd}, nil
}

func (w *waitFD) readFD() int { return w.fd }

// signal leaves the counter non-zero; nothing ever drains it.
func (w *waitFD) signal() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		if _, err := unix.Write(w.fd, buf[:]); err != unix.EINTR {
			return
		}
	}
}

func (w *waitFD) close() error {
	return unix.Close(w.fd)
}
