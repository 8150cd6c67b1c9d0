//go:build linux

// control/platform_linux_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformProbes(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	state := dp.DumpState()
	assert.Contains(t, state, "platform.pid")
	assert.Contains(t, state, "platform.nofile")
	open, ok := state["platform.open_fds"].(int)
	assert.True(t, ok)
	assert.Positive(t, open)
}
