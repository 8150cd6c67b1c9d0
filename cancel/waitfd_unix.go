//go:build unix && !linux

// File: cancel/waitfd_unix.go
// Author: momentics <momentics@gmail.com>
//
// Self-pipe wait descriptor for platforms without eventfd.

package cancel

import (
	"golang.org/x/sys/unix"
)

type waitFD struct {
	r, w int
}

func newWaitFD() (*waitFD, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, err
		}
	}
	return &waitFD{r: p[0], w: p[1]}, nil
}

func (w *waitFD) readFD() int { return w.r }

func (w *waitFD) signal() {
	for {
		if _, err := unix.Write(w.w, []byte{0}); err != unix.EINTR {
			return
		}
	}
}

func (w *waitFD) close() error {
	err := unix.Close(w.r)
	if err2 := unix.Close(w.w); err == nil {
		err = err2
	}
	return err
}
