// File: api/volume.go
// Author: momentics <momentics@gmail.com>
//
// Device hot-plug collaborator contracts.

package api

// DeviceEventKind distinguishes attach and detach notifications.
type DeviceEventKind int

const (
	DeviceAdded DeviceEventKind = iota + 1
	DeviceRemoved
)

func (k DeviceEventKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DeviceEvent is published by a device daemon subscription.
type DeviceEvent struct {
	Kind DeviceEventKind
	UUID string
}

// DeviceEvents is a process-wide device event subscription. Only one
// subscriber may be active at a time.
type DeviceEvents interface {
	Subscribe(fn func(DeviceEvent)) error
	Unsubscribe() error
}

// VolumeMonitor publishes volume add/remove notifications to higher layers.
type VolumeMonitor interface {
	OnDeviceAdded(fn func(id string))
	OnDeviceRemoved(fn func(id string))
	Close() error
}
