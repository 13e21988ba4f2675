// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"fmt"
)

// Stop sets the termination flag, stops admitting connections and drains
// every live session. It blocks until all workers have exited or the
// shutdown timeout elapses. Safe to call multiple times; subsequent calls
// only wait.
func (s *Server) Stop() error {
	if !s.TransitionToStopping() {
		s.WaitForShutdown()
		return nil
	}
	return s.doStop()
}

func (s *Server) doStop() error {
	s.logger.Info("Shutting down", "live_sessions", s.registry.Len())

	// The termination hook already closed the listener. Once the accept loop
	// has returned nothing else can register, so the drain below terminates.
	<-s.acceptDone

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := s.Drain(ctx)
	if err != nil {
		s.logger.Error("Shutdown incomplete", "live_sessions", s.registry.Len(), "error", err)
	}

	s.CancelContext()
	s.WaitForShutdown()

	s.TransitionToStopped()
	s.CloseErrChannel()
	s.logger.Info("Stopped")

	return err
}

// Drain interrupts live workers one at a time and waits for each to exit.
// It returns nil once the registry is empty, immediately if it already is.
// The registry lock is never held while waiting.
func (s *Server) Drain(ctx context.Context) error {
	for {
		interrupt, done, ok := s.registry.SnapshotOne()
		if !ok {
			return nil
		}
		interrupt()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("%w: %d sessions still live: %w", ErrShutdownTimeout, s.registry.Len(), ctx.Err())
		}
	}
}
