// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the syscall seam, the
// reactor and the device event daemon.
package fake
