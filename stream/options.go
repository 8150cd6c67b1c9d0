// File: stream/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for stream construction.

package stream

import (
	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/internal/logging"
	"github.com/momentics/hioload-fdstream/internal/sysfd"
)

// Option configures a Stream.
type Option func(*Stream)

// WithReactor sets the reactor completing asynchronous operations.
func WithReactor(r api.Reactor) Option {
	return func(s *Stream) { s.reactor = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Stream) { s.log = l }
}

// WithMetrics sets the counter registry.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Stream) { s.metrics = m }
}

// WithSyscalls replaces the syscall layer. Intended for tests.
func WithSyscalls(sys sysfd.Syscalls) Option {
	return func(s *Stream) {
		if sys != nil {
			s.sys = sys
		}
	}
}
