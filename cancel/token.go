// File: cancel/token.go
// Author: momentics <momentics@gmail.com>
//
// Cancellation token with a lazily created wait descriptor.

package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-fdstream/api"
)

// ErrReleased is returned by FD after Release.
var ErrReleased = errors.New("cancel: token released")

// Token is a shared, monotonic cancellation flag. The zero value is an
// uncancelled token. A nil *Token is valid and never cancelled.
type Token struct {
	cancelled atomic.Bool

	mu       sync.Mutex // guards done, wait and released
	done     chan struct{}
	wait     *waitFD
	released bool
}

var _ api.Canceller = (*Token)(nil)

// New returns an uncancelled token.
func New() *Token {
	return &Token{}
}

// Cancel requests cancellation. It is idempotent and safe for concurrent use.
func (t *Token) Cancel() {
	if t == nil || !t.cancelled.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	if t.done == nil {
		t.done = make(chan struct{})
	}
	close(t.done)
	if t.wait != nil {
		t.wait.signal()
	}
	t.mu.Unlock()
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Err returns api.ErrCancelled once cancelled.
func (t *Token) Err() error {
	if t.IsCancelled() {
		return api.ErrCancelled
	}
	return nil
}

// Done returns a channel closed on cancellation. A nil token returns nil,
// which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// only Cancel closes it, after flipping the flag
	if t.done == nil {
		t.done = make(chan struct{})
	}
	return t.done
}

// FD returns a descriptor that becomes readable once the token is cancelled.
// The descriptor is created on first use and owned by the token; callers
// must not read from or close it. A nil token returns -1.
func (t *Token) FD() (int, error) {
	if t == nil {
		return -1, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return -1, ErrReleased
	}
	if t.wait == nil {
		w, err := newWaitFD()
		if err != nil {
			return -1, err
		}
		t.wait = w
		if t.cancelled.Load() {
			t.wait.signal()
		}
	}
	return t.wait.readFD(), nil
}

// Release closes the wait descriptor, if one was created. Operations still
// waiting on it must have completed.
func (t *Token) Release() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	if t.wait == nil {
		return nil
	}
	err := t.wait.close()
	t.wait = nil
	return err
}

// FromContext returns a token cancelled when ctx is done. stop detaches the
// token from ctx and must be called to release the watcher goroutine.
func FromContext(ctx context.Context) (tok *Token, stop func()) {
	tok = New()
	if ctx.Err() != nil {
		tok.Cancel()
		return tok, func() {}
	}
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			tok.Cancel()
		case <-quit:
		}
	}()
	return tok, func() { once.Do(func() { close(quit) }) }
}
