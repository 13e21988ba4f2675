// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("full cycle", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if b.State() != StateCreated {
			t.Fatalf("expected created, got %s", b.State())
		}
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting: %v", err)
		}
		if b.Context() == nil {
			t.Fatal("Context() should be set after starting")
		}
		b.TransitionToRunning()
		if !b.IsRunning() {
			t.Fatalf("expected running, got %s", b.State())
		}
		if !b.TransitionToStopping() {
			t.Fatal("first TransitionToStopping should return true")
		}
		if b.TransitionToStopping() {
			t.Fatal("second TransitionToStopping should return false")
		}
		b.TransitionToStopped()
		if !b.State().IsTerminal() {
			t.Fatalf("expected terminal state, got %s", b.State())
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if b.TransitionToStopping() {
			t.Fatal("stopping a created base should return false")
		}
		if b.State() != StateStopped {
			t.Fatalf("expected stopped, got %s", b.State())
		}
		if !b.Terminating() {
			t.Fatal("termination flag should be set")
		}
	})

	t.Run("double start", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting: %v", err)
		}
		if err := b.TransitionToStarting(context.Background()); err == nil {
			t.Fatal("second TransitionToStarting should fail")
		}
	})

	t.Run("cancelled context fails start", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		b := NewBase()
		err := b.TransitionToStarting(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if b.State() != StateFailed {
			t.Fatalf("expected failed, got %s", b.State())
		}
	})

	t.Run("failed records error", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting: %v", err)
		}
		boom := errors.New("boom")
		b.TransitionToFailed(boom)
		if !errors.Is(b.LastError(), boom) {
			t.Fatalf("LastError() = %v", b.LastError())
		}
		select {
		case err := <-b.Err():
			if !errors.Is(err, boom) {
				t.Fatalf("Err() delivered %v", err)
			}
		default:
			t.Fatal("expected error on Err() channel")
		}
		if b.Context().Err() == nil {
			t.Fatal("context should be cancelled after failure")
		}
	})
}

func TestTerminate(t *testing.T) {
	t.Parallel()

	var hooks atomic.Int32
	b := NewBase(WithOnTerminate(func() { hooks.Add(1) }))

	if b.Terminating() {
		t.Fatal("new base should not be terminating")
	}

	const callers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range callers {
		wg.Go(func() {
			if b.Terminate() {
				wins.Add(1)
			}
		})
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("Terminate returned true %d times, want 1", got)
	}
	if got := hooks.Load(); got != 1 {
		t.Errorf("hook ran %d times, want 1", got)
	}
	if !b.Terminating() {
		t.Error("Terminating() should stay true")
	}
}

func TestWaitForReady(t *testing.T) {
	t.Parallel()

	b := NewBase()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.WaitForReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting: %v", err)
	}
	b.TransitionToRunning()
	if err := b.WaitForReady(context.Background()); err != nil {
		t.Fatalf("WaitForReady after running: %v", err)
	}
}

func TestGoAndCancel(t *testing.T) {
	t.Parallel()

	b := NewBase()
	if err := b.TransitionToStarting(context.Background()); err != nil {
		t.Fatalf("TransitionToStarting: %v", err)
	}
	ctx := b.Context()

	var exited atomic.Int32
	for range 5 {
		b.Go(func() {
			<-ctx.Done()
			exited.Add(1)
		})
	}

	b.CancelContext()
	b.WaitForShutdown()

	if got := exited.Load(); got != 5 {
		t.Fatalf("exited = %d, want 5", got)
	}
}

func TestSendErrorNonBlocking(t *testing.T) {
	t.Parallel()

	b := NewBase(WithErrorChannel(1))
	b.SendError(errors.New("first"))
	b.SendError(errors.New("dropped"))

	if err := <-b.Err(); err.Error() != "first" {
		t.Fatalf("got %v, want first", err)
	}
	b.CloseErrChannel()
	if _, ok := <-b.Err(); ok {
		t.Fatal("channel should be closed")
	}
}
