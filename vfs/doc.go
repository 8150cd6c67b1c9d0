// Package vfs
// Author: momentics <momentics@gmail.com>
//
// Local path/URI resolution. Handles returned by the resolver open their
// file into an owning, non-blocking output stream.
package vfs
