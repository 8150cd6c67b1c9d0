//go:build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific platform probes.

package control

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes sets Linux-specific descriptor probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.pid", func() any {
		return os.Getpid()
	})
	dp.RegisterProbe("platform.nofile", func() any {
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
			return err.Error()
		}
		return lim.Cur
	})
	dp.RegisterProbe("platform.open_fds", func() any {
		entries, err := filepath.Glob("/proc/self/fd/*")
		if err != nil {
			return err.Error()
		}
		return len(entries)
	})
}
