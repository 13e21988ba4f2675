// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Base provides the service context for a server: lifecycle state, the
// termination flag, a cancellable context and goroutine accounting.
//
// A server instance is single-use: once stopped or failed, create a new instance.
type Base struct {
	state atomic.Int32

	// terminating is set at most once and never cleared.
	terminating atomic.Bool
	onTerminate []func()

	stateMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedCh chan struct{}
	errCh     chan error
	lastErr   error
}

// NewBase creates a new Base with the given options.
func NewBase(opts ...Option) *Base {
	b := &Base{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// State returns the current server state (atomic, lock-free read).
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning returns true if the server is in the Running state.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Terminating reports whether termination has been requested. It is safe to
// call from any goroutine without locking.
func (b *Base) Terminating() bool {
	return b.terminating.Load()
}

// Terminate sets the termination flag. Only the first call has any effect and
// returns true; the registered OnTerminate hooks run during that call.
func (b *Base) Terminate() bool {
	if !b.terminating.CompareAndSwap(false, true) {
		return false
	}
	for _, fn := range b.onTerminate {
		fn()
	}
	return true
}

// Err returns a channel for receiving async errors.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that caused the Failed state, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// TransitionToStarting attempts to transition from Created to Starting.
// Returns an error if the current state is not Created or if the context
// is already cancelled.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	select {
	case <-ctx.Done():
		err := fmt.Errorf("context cancelled before start: %w", ctx.Err())
		b.TransitionToFailed(err)
		return err
	default:
	}

	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", b.State())
	}

	b.stateMu.Lock()
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.stateMu.Unlock()

	return nil
}

// TransitionToRunning marks the server as running and closes the started channel.
func (b *Base) TransitionToRunning() {
	if b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(b.startedCh)
	}
}

// TransitionToFailed marks the server as failed with the given error.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	b.lastErr = err
	cancel := b.cancel
	b.stateMu.Unlock()

	b.state.Store(int32(StateFailed))

	if cancel != nil {
		cancel()
	}

	b.SendError(err)
}

// TransitionToStopping sets the termination flag and attempts to move into the
// Stopping state. Returns true if this call performed the transition, false if
// the server was never started or is already stopping or stopped.
func (b *Base) TransitionToStopping() bool {
	b.Terminate()
	for {
		currentState := b.State()
		switch currentState {
		case StateStopped, StateFailed, StateStopping:
			return false
		case StateCreated:
			if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if b.state.CompareAndSwap(int32(currentState), int32(StateStopping)) {
				return true
			}
		default:
			return false
		}
	}
}

// CancelContext cancels the service context, which every worker context is
// derived from. It is kept separate from TransitionToStopping so that a
// server can stop admissions first and interrupt workers afterwards.
func (b *Base) CancelContext() {
	b.stateMu.Lock()
	cancel := b.cancel
	b.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// TransitionToStopped marks the server as fully stopped.
// Must be called after all goroutines have exited.
func (b *Base) TransitionToStopped() {
	b.state.Store(int32(StateStopped))
}

// WaitForReady blocks until the server is ready or ctx is cancelled.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.startedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for server ready: %w", ctx.Err())
	}
}

// WaitForShutdown blocks until all goroutines tracked by the Base have completed.
func (b *Base) WaitForShutdown() {
	b.wg.Wait()
}

// Context returns the service context. Returns nil before TransitionToStarting.
func (b *Base) Context() context.Context {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.ctx
}

// Go runs fn on a new goroutine tracked by WaitForShutdown.
func (b *Base) Go(fn func()) {
	b.wg.Go(fn)
}

// SendError sends an error to the error channel (non-blocking).
// If the channel is full, the error is dropped.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}

// CloseErrChannel closes the error channel to signal consumers.
// Should be called once, when the server is fully stopped.
func (b *Base) CloseErrChannel() {
	close(b.errCh)
}

// StartedChannel returns a channel closed when the server transitions to Running.
func (b *Base) StartedChannel() <-chan struct{} {
	return b.startedCh
}
