// Package volume
// Author: momentics <momentics@gmail.com>
//
// Device hot-plug volume monitor. Holds the process-wide device event
// subscription for its lifetime and publishes add/remove notifications on
// the reactor goroutine.
package volume
