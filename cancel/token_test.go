// File: cancel/token_test.go
// Author: momentics <momentics@gmail.com>

package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fdstream/api"
)

func readable(t *testing.T, fd int, timeoutMS int) bool {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, timeoutMS)
		if err == unix.EINTR {
			continue
		}
		require.NoError(t, err)
		return fds[0].Revents&unix.POLLIN != 0
	}
}

// TestTokenCancelIdempotent tests that cancellation is monotonic.
func TestTokenCancelIdempotent(t *testing.T) {
	tok := New()
	assert.False(t, tok.IsCancelled())
	assert.NoError(t, tok.Err())

	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.IsCancelled())
	assert.ErrorIs(t, tok.Err(), api.ErrCancelled)
	assert.True(t, api.Cancelled(tok))

	select {
	case <-tok.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestZeroValueToken(t *testing.T) {
	var tok Token
	done := tok.Done()
	assert.False(t, tok.IsCancelled())

	assert.NotPanics(t, tok.Cancel)
	assert.True(t, tok.IsCancelled())
	select {
	case <-done:
	default:
		t.Fatal("done channel taken before cancel not closed")
	}

	var late Token
	late.Cancel()
	select {
	case <-late.Done():
	default:
		t.Fatal("done channel taken after cancel not closed")
	}
}

func TestNilToken(t *testing.T) {
	var tok *Token
	tok.Cancel()
	assert.False(t, tok.IsCancelled())
	assert.Nil(t, tok.Done())
	fd, err := tok.FD()
	assert.NoError(t, err)
	assert.Equal(t, -1, fd)
	assert.NoError(t, tok.Release())
}

// TestFDReadableAfterCancel tests the wait descriptor across the cancel edge.
func TestFDReadableAfterCancel(t *testing.T) {
	tok := New()
	defer tok.Release()

	fd, err := tok.FD()
	require.NoError(t, err)
	require.GreaterOrEqual(t, fd, 0)
	assert.False(t, readable(t, fd, 0))

	again, err := tok.FD()
	require.NoError(t, err)
	assert.Equal(t, fd, again, "descriptor is created once")

	tok.Cancel()
	assert.True(t, readable(t, fd, 0))
	// nothing drains it: still readable for every later waiter
	assert.True(t, readable(t, fd, 0))
}

func TestFDCreatedAfterCancel(t *testing.T) {
	tok := New()
	defer tok.Release()
	tok.Cancel()

	fd, err := tok.FD()
	require.NoError(t, err)
	assert.True(t, readable(t, fd, 0))
}

func TestCancelWakesBlockedPoll(t *testing.T) {
	tok := New()
	defer tok.Release()
	fd, err := tok.FD()
	require.NoError(t, err)

	woke := make(chan bool, 1)
	go func() {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			_, err := unix.Poll(fds, 5000)
			if err != unix.EINTR {
				woke <- err == nil && fds[0].Revents&unix.POLLIN != 0
				return
			}
		}
	}()
	time.Sleep(20 * time.Millisecond)
	tok.Cancel()
	assert.True(t, <-woke)
}

func TestRelease(t *testing.T) {
	tok := New()
	_, err := tok.FD()
	require.NoError(t, err)
	require.NoError(t, tok.Release())

	_, err = tok.FD()
	assert.ErrorIs(t, err, ErrReleased)
	// the flag outlives the descriptor
	tok.Cancel()
	assert.True(t, tok.IsCancelled())
}

func TestConcurrentCancel(t *testing.T) {
	tok := New()
	defer tok.Release()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tok.FD()
			tok.Cancel()
		}()
	}
	wg.Wait()
	fd, err := tok.FD()
	require.NoError(t, err)
	assert.True(t, readable(t, fd, 0))
}

func TestFromContext(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	tok, stop := FromContext(ctx)
	defer stop()
	assert.False(t, tok.IsCancelled())

	cancelCtx()
	select {
	case <-tok.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("token not cancelled with context")
	}
}

func TestFromContextAlreadyDone(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()
	tok, stop := FromContext(ctx)
	stop()
	assert.True(t, tok.IsCancelled())
}

func TestFromContextStop(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	tok, stop := FromContext(ctx)
	stop()
	stop()
	cancelCtx()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, tok.IsCancelled())
}
