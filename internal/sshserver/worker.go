// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/honeypotd/ssh-honeypotd/internal/sshengine"
)

const (
	// StateAccepted: registered, worker not yet running.
	StateAccepted SessionState = iota
	// StateHandshake: waiting for key exchange to complete.
	StateHandshake
	// StateAuthLoop: logging and rejecting authentication requests.
	StateAuthLoop
	// StateTerminated: unregistered and released.
	StateTerminated
)

// SessionState is the position of one worker in its session lifecycle.
type SessionState int

// String returns a human-readable representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateHandshake:
		return "handshake"
	case StateAuthLoop:
		return "auth_loop"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// runWorker owns rec until it returns. It always unregisters rec, closes the
// session and then closes rec.done, in that order.
func (s *Server) runWorker(ctx context.Context, rec *connRecord) {
	defer func() {
		s.registry.Unregister(rec)
		if err := rec.session.Close(); err != nil {
			s.logger.Debug("close session", "peer", rec.peer.String(), "error", err)
		}
		rec.cancel()
		rec.state = StateTerminated
		close(rec.done)
	}()

	rec.state = StateHandshake
	if err := rec.session.Handshake(ctx); err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("Handshake interrupted", "peer", rec.peer.String(), "local", rec.local.String())
			return
		}
		s.logger.Warn("Did not receive identification string",
			"peer", rec.peer.String(), "local", rec.local.String(),
			"client_version", rec.session.ClientVersion(), "error", err)
		return
	}

	rec.state = StateAuthLoop
	s.authLoop(ctx, rec)
}

func (s *Server) authLoop(ctx context.Context, rec *connRecord) {
	version := fmt.Sprintf("ssh%d", rec.version)
	for {
		if s.Terminating() || ctx.Err() != nil {
			return
		}

		msg, err := rec.session.Next(ctx, s.cfg.PollInterval)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, sshengine.ErrSessionClosed) && ctx.Err() == nil {
				s.logger.Debug("session read failed", "peer", rec.peer.String(), "error", err)
			}
			return
		}
		if msg == nil {
			continue
		}

		if msg.IsPassword() {
			s.logger.Warn("Failed password",
				"user", msg.User,
				"password", msg.Password,
				"peer", rec.peer.String(),
				"local", rec.local.String(),
				"version", version,
				"client_version", rec.session.ClientVersion(),
			)
			err = rec.session.Deny(msg)
		} else {
			s.logger.Debug("auth request", "method", msg.Method, "user", msg.User, "peer", rec.peer.String())
			err = rec.session.ReplyDefault(msg)
		}
		if err != nil {
			return
		}
	}
}
