// Package conn supervises long-lived platform connections: it keeps a
// transport connected, backs off between attempts and reports state
// transitions.
package conn

import (
	"context"
	"sync"
)

// State describes where a supervised connection currently is in its
// lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}

	return "unknown"
}

// Transport is one supervised connection. Connect establishes the
// connection and returns once it is up; the returned Handle completes
// when the connection dies.
type Transport interface {
	Name() string
	Connect(ctx context.Context) (*Handle, error)
}

// Handle represents one established connection. The transport fails it
// when the connection dies; the supervisor closes it when shutting down.
type Handle struct {
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	closeFn func() error
}

// NewHandle builds a handle; closeFn tears the underlying connection
// down and may be nil.
func NewHandle(closeFn func() error) *Handle {
	return &Handle{
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

// Fail completes the handle with the given error. Only the first call
// wins.
func (h *Handle) Fail(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

// Done completes when the connection has died.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the failure cause after Done completes.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

// Close tears the connection down and completes the handle.
func (h *Handle) Close() error {
	var err error
	if h.closeFn != nil {
		err = h.closeFn()
	}

	h.Fail(nil)

	return err
}
