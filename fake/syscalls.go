// File: fake/syscalls.go
// Author: momentics <momentics@gmail.com>
//
// Recording syscall stub: a descriptor that records every syscall issued
// against it.

package fake

import (
	"sync"

	"golang.org/x/sys/unix"
)

// WriteResult scripts the outcome of one write call. N < 0 means "accept
// the whole buffer".
type WriteResult struct {
	N   int
	Err error
}

// Syscalls implements sysfd.Syscalls without touching the kernel.
type Syscalls struct {
	mu       sync.Mutex
	writes   [][]byte
	closes   []int
	polls    int
	script   []WriteResult
	closeErr []error
	pollErr  []error
	onWrite  func(fd int, p []byte)
	onClose  func(fd int)
	onPoll   func(fds []unix.PollFd)
}

// NewSyscalls returns a stub where every write succeeds in full, every
// close succeeds and every poll reports all requested events ready.
func NewSyscalls() *Syscalls {
	return &Syscalls{}
}

// ScriptWrites queues outcomes for the next write calls, in order.
func (s *Syscalls) ScriptWrites(results ...WriteResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, results...)
}

// ScriptCloses queues errors for the next close calls, in order.
func (s *Syscalls) ScriptCloses(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr = append(s.closeErr, errs...)
}

// ScriptPolls queues errors for the next poll calls, in order.
func (s *Syscalls) ScriptPolls(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollErr = append(s.pollErr, errs...)
}

// OnWrite installs a hook invoked before each write is recorded.
func (s *Syscalls) OnWrite(fn func(fd int, p []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// OnClose installs a hook invoked before each close is recorded.
func (s *Syscalls) OnClose(fn func(fd int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// OnPoll installs a hook that may set Revents before poll returns.
func (s *Syscalls) OnPoll(fn func(fds []unix.PollFd)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPoll = fn
}

// Write implements sysfd.Syscalls.
func (s *Syscalls) Write(fd int, p []byte) (int, error) {
	s.mu.Lock()
	hook := s.onWrite
	res := WriteResult{N: -1}
	if len(s.script) > 0 {
		res = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if hook != nil {
		hook(fd, p)
	}
	if res.Err != nil {
		s.mu.Lock()
		s.writes = append(s.writes, nil)
		s.mu.Unlock()
		return -1, res.Err
	}
	n := res.N
	if n < 0 || n > len(p) {
		n = len(p)
	}
	s.mu.Lock()
	s.writes = append(s.writes, append([]byte(nil), p[:n]...))
	s.mu.Unlock()
	return n, nil
}

// Close implements sysfd.Syscalls.
func (s *Syscalls) Close(fd int) error {
	s.mu.Lock()
	hook := s.onClose
	s.mu.Unlock()
	if hook != nil {
		hook(fd)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, fd)
	if len(s.closeErr) > 0 {
		err := s.closeErr[0]
		s.closeErr = s.closeErr[1:]
		return err
	}
	return nil
}

// Poll implements sysfd.Syscalls.
func (s *Syscalls) Poll(fds []unix.PollFd, timeout int) (int, error) {
	s.mu.Lock()
	s.polls++
	hook := s.onPoll
	var err error
	if len(s.pollErr) > 0 {
		err = s.pollErr[0]
		s.pollErr = s.pollErr[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return -1, err
	}
	if hook != nil {
		hook(fds)
	} else {
		for i := range fds {
			fds[i].Revents = fds[i].Events
		}
	}
	var n int
	for _, fd := range fds {
		if fd.Revents != 0 {
			n++
		}
	}
	return n, nil
}

// WriteCount returns the number of write calls, failed ones included.
func (s *Syscalls) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// Written returns the concatenation of all successfully written bytes.
func (s *Syscalls) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, w := range s.writes {
		out = append(out, w...)
	}
	return out
}

// Closes returns the descriptors passed to close, in call order.
func (s *Syscalls) Closes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.closes...)
}

// PollCount returns the number of poll calls.
func (s *Syscalls) PollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}
