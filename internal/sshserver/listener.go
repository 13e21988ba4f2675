// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Listen binds the configured TCP address.
func Listen(ctx context.Context, cfg Config) (net.Listener, error) {
	cfg = cfg.withDefaults()
	addr := net.JoinHostPort(cfg.Address.String(), cfg.Port.String())
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// acceptLoop is the only goroutine that admits connections.
func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.Terminating() {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				s.SendError(fmt.Errorf("listener closed: %w", err))
				return
			}
			delay = nextAcceptDelay(delay)
			s.logger.Warn("Accept failed", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		// Connections that race the termination flag are never served.
		if s.Terminating() {
			_ = conn.Close()
			return
		}
		s.dispatch(conn)
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	return min(d*2, maxAcceptDelay)
}

// dispatch wraps, admits and launches one connection. Every failure path
// releases the connection and returns; none of them stop the accept loop.
func (s *Server) dispatch(conn net.Conn) {
	sess, err := s.engine.NewSession(conn)
	if err != nil {
		s.logger.Error("Cannot allocate connection", "severity", "critical",
			"peer", endpointOf(conn.RemoteAddr()).String(), "error", fmt.Errorf("%w: %w", ErrAllocation, err))
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(s.Context())
	rec := newRecord(sess, cancel)

	if !s.admit(rec) {
		s.logger.Error("Too many connections", "peer", rec.peer.String(), "local", rec.local.String(),
			"max_sessions", s.cfg.MaxSessions, "error", ErrCapacityExceeded)
		s.discard(rec)
		return
	}

	if err := s.launch(ctx, rec); err != nil {
		s.logger.Error("Failed to start worker", "severity", "critical",
			"peer", rec.peer.String(), "error", err)
		s.registry.Unregister(rec)
		s.discard(rec)
	}
}

func (s *Server) admit(rec *connRecord) bool {
	if s.cfg.CapacityPolicy == CapacitySoft {
		if prior := s.registry.Register(rec); prior >= s.cfg.MaxSessions {
			s.registry.Unregister(rec)
			return false
		}
		return true
	}
	_, ok := s.registry.Admit(rec, s.cfg.MaxSessions)
	return ok
}

func (s *Server) launch(ctx context.Context, rec *connRecord) error {
	if s.Terminating() {
		return fmt.Errorf("%w: service is terminating", ErrWorkerLaunch)
	}
	s.Go(func() { s.runWorker(ctx, rec) })
	return nil
}

// discard releases a record that never got a worker.
func (s *Server) discard(rec *connRecord) {
	_ = rec.session.Close()
	rec.cancel()
	rec.state = StateTerminated
	close(rec.done)
}
