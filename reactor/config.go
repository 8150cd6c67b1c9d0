// File: reactor/config.go
// Author: momentics <momentics@gmail.com>
//
// Reactor configuration.

package reactor

import (
	"errors"

	"github.com/momentics/hioload-fdstream/control"
	"github.com/momentics/hioload-fdstream/internal/logging"
)

// Reactor lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("reactor: already running")
	ErrStopped        = errors.New("reactor: stopped")
	ErrInvalidFD      = errors.New("reactor: invalid file descriptor")
	ErrNilCallback    = errors.New("reactor: nil callback")
	ErrNoEvents       = errors.New("reactor: empty event mask")
)

// Config holds parameters immutable for the reactor's lifetime.
type Config struct {
	MaxEvents int                      // epoll_wait batch size
	Logger    *logging.Logger          // nil disables logging
	Metrics   *control.MetricsRegistry // nil disables counters
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		MaxEvents: 128,
	}
}
