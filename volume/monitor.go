// File: volume/monitor.go
// Author: momentics <momentics@gmail.com>
//
// Volume monitor backed by a device event subscription.

package volume

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-fdstream/api"
	"github.com/momentics/hioload-fdstream/internal/logging"
)

// ErrAlreadySubscribed is returned by New while another monitor holds the
// device event subscription.
var ErrAlreadySubscribed = api.ErrAlreadySubscribed

// ErrNoReactor is returned by New without a reactor.
var ErrNoReactor = errors.New("volume: no reactor configured")

// Volume is an attached device.
type Volume struct {
	UUID string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// Monitor tracks attached devices. The volume list and listener sets are
// only mutated on the reactor goroutine; readers take a snapshot.
type Monitor struct {
	src     api.DeviceEvents
	reactor api.Reactor
	log     *logging.Logger

	mu      sync.Mutex
	volumes []*Volume
	added   []func(id string)
	removed []func(id string)
	closed  bool
}

var _ api.VolumeMonitor = (*Monitor)(nil)

// New subscribes to src. The subscription is released by Close.
func New(src api.DeviceEvents, r api.Reactor, opts ...Option) (*Monitor, error) {
	if r == nil {
		return nil, ErrNoReactor
	}
	m := &Monitor{src: src, reactor: r}
	for _, o := range opts {
		o(m)
	}
	if err := src.Subscribe(m.onEvent); err != nil {
		return nil, err
	}
	m.log.Info().Log("volume: monitor alive")
	return m, nil
}

// onEvent runs on the daemon's goroutine.
func (m *Monitor) onEvent(ev api.DeviceEvent) {
	if err := m.reactor.Submit(func() { m.apply(ev) }); err != nil {
		m.log.Warning().Str("uuid", ev.UUID).Str("event", ev.Kind.String()).Err(err).Log("volume: event dropped")
	}
}

func (m *Monitor) apply(ev api.DeviceEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var listeners []func(string)
	switch ev.Kind {
	case api.DeviceAdded:
		m.volumes = append([]*Volume{{UUID: ev.UUID}}, m.volumes...)
		listeners = append(listeners, m.added...)
		m.log.Debug().Str("uuid", ev.UUID).Log("volume: creating volume")
	case api.DeviceRemoved:
		i := m.find(ev.UUID)
		if i < 0 {
			m.mu.Unlock()
			return
		}
		m.volumes = append(m.volumes[:i], m.volumes[i+1:]...)
		listeners = append(listeners, m.removed...)
		m.log.Debug().Str("uuid", ev.UUID).Log("volume: removing volume")
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ev.UUID)
	}
}

func (m *Monitor) find(uuid string) int {
	for i, v := range m.volumes {
		if v.UUID == uuid {
			return i
		}
	}
	return -1
}

// OnDeviceAdded registers fn for attach notifications.
func (m *Monitor) OnDeviceAdded(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, fn)
}

// OnDeviceRemoved registers fn for detach notifications.
func (m *Monitor) OnDeviceRemoved(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, fn)
}

// Volumes returns the attached volumes, most recent first.
func (m *Monitor) Volumes() []Volume {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Volume, len(m.volumes))
	for i, v := range m.volumes {
		out[i] = *v
	}
	return out
}

// Close releases the device event subscription. Events still queued on
// the reactor are discarded.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.volumes = nil
	m.mu.Unlock()
	return m.src.Unsubscribe()
}
