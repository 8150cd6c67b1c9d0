// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the fd stream core.
//
// Provides concurrent-safe state handling primitives including:
//   - Counter registry updated by streams and the reactor
//   - Probe registration and state export for diagnostics
//   - Platform probes describing descriptor limits
package control
