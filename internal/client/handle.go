package client

import (
	"context"
	"sync/atomic"
)

// RequestHandle is a cancellable token for one in-flight query execution.
//
// Cancel is best effort: it tells the transport the caller is no longer
// interested, but the completion callback may still fire afterwards. Cancel is
// idempotent and a no-op once the request has completed.
type RequestHandle interface {
	Cancel()
	IsActive() bool
}

const (
	handleActive int32 = iota
	handleCancelled
	handleFinished
)

// Handle is the RequestHandle used by executors that run a request under a
// cancellable context.
type Handle struct {
	cancel context.CancelFunc
	state  atomic.Int32
}

var _ RequestHandle = (*Handle)(nil)

// NewHandle returns an active handle that calls cancel on Cancel.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel}
}

func (h *Handle) Cancel() {
	if h.state.CompareAndSwap(handleActive, handleCancelled) && h.cancel != nil {
		h.cancel()
	}
}

func (h *Handle) IsActive() bool { return h.state.Load() == handleActive }

// Cancelled reports whether Cancel won over completion.
func (h *Handle) Cancelled() bool { return h.state.Load() == handleCancelled }

// Finish marks the request complete. Later Cancel calls do nothing.
func (h *Handle) Finish() {
	h.state.CompareAndSwap(handleActive, handleFinished)
}
