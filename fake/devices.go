// File: fake/devices.go
// Author: momentics <momentics@gmail.com>
//
// In-process device event daemon.

package fake

import (
	"sync"

	"github.com/momentics/hioload-fdstream/api"
)

// Devices implements api.DeviceEvents. Emit delivers on the calling
// goroutine, as a daemon callback thread would.
type Devices struct {
	mu           sync.Mutex
	handler      func(api.DeviceEvent)
	subscribeErr error
	unsubscribed int
}

var _ api.DeviceEvents = (*Devices)(nil)

// NewDevices returns a daemon with no subscriber.
func NewDevices() *Devices { return &Devices{} }

// SetSubscribeError makes the next Subscribe fail with err.
func (d *Devices) SetSubscribeError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribeErr = err
}

// Subscribe implements api.DeviceEvents.
func (d *Devices) Subscribe(fn func(api.DeviceEvent)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.subscribeErr; err != nil {
		d.subscribeErr = nil
		return err
	}
	if d.handler != nil {
		return api.ErrAlreadySubscribed
	}
	d.handler = fn
	return nil
}

// Unsubscribe implements api.DeviceEvents.
func (d *Devices) Unsubscribe() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handler != nil {
		d.unsubscribed++
	}
	d.handler = nil
	return nil
}

// Emit delivers ev to the subscriber, if any, and reports whether it was
// delivered.
func (d *Devices) Emit(kind api.DeviceEventKind, uuid string) bool {
	d.mu.Lock()
	fn := d.handler
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(api.DeviceEvent{Kind: kind, UUID: uuid})
	return true
}

// Subscribed reports whether a handler is installed.
func (d *Devices) Subscribed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler != nil
}

// Unsubscribes returns how many subscriptions were released.
func (d *Devices) Unsubscribes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unsubscribed
}
