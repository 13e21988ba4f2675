// SPDX-License-Identifier: MPL-2.0

package sshengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"
)

type session struct {
	conn net.Conn
	srv  *ssh.Server

	events chan *Message

	reached   chan struct{}
	reachOnce sync.Once

	pumpDone  chan struct{}
	startOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	failErr       error
	clientVersion string
}

func newSession(e *Server, conn net.Conn) (*session, error) {
	s := &session{
		conn:     conn,
		events:   make(chan *Message),
		reached:  make(chan struct{}),
		pumpDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}

	// One ssh.Server per connection keeps every callback bound to its session.
	srv, err := wish.NewServer(
		withHostSigners(e.signers),
		wish.WithVersion(e.version),
		wish.WithPasswordAuth(s.onPassword),
		wish.WithIdleTimeout(e.idleTimeout),
		wish.WithMaxTimeout(e.maxTimeout),
		s.withCallbacks(),
	)
	if err != nil {
		return nil, fmt.Errorf("build ssh server: %w", err)
	}
	s.srv = srv

	return s, nil
}

// withHostSigners installs the loaded host keys. wish only generates a key
// of its own when none were installed by an earlier option.
func withHostSigners(signers []gossh.Signer) ssh.Option {
	return func(srv *ssh.Server) error {
		if len(signers) == 0 {
			return ErrNoHostKeys
		}
		for _, signer := range signers {
			srv.AddHostKey(signer)
		}
		return nil
	}
}

func (s *session) withCallbacks() ssh.Option {
	return func(srv *ssh.Server) error {
		srv.ServerConfigCallback = s.serverConfig
		srv.ConnectionFailedCallback = s.onConnectionFailed
		return nil
	}
}

func (s *session) Handshake(ctx context.Context) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	s.startOnce.Do(func() { go s.pump() })

	select {
	case <-s.reached:
		return nil
	case <-s.pumpDone:
		select {
		case <-s.reached:
			return nil
		default:
		}
		return s.handshakeError()
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Next(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.events:
		return msg, nil
	case <-s.pumpDone:
		return nil, io.EOF
	case <-s.closed:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

// Deny and ReplyDefault both let the pending callback return a failure. The
// SSH library then sends USERAUTH_FAILURE listing password, the only method
// this server enables.
func (s *session) Deny(msg *Message) error { return s.reply(msg) }

func (s *session) ReplyDefault(msg *Message) error { return s.reply(msg) }

func (s *session) reply(msg *Message) error {
	if msg != nil {
		msg.release()
	}
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
		return nil
	}
}

func (s *session) PeerAddr() net.Addr  { return s.conn.RemoteAddr() }
func (s *session) LocalAddr() net.Addr { return s.conn.LocalAddr() }
func (s *session) Version() int        { return ProtocolVersion }

func (s *session) ClientVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientVersion
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		// Claims startOnce if the pump never ran so pumpDone is always closed.
		s.startOnce.Do(func() { close(s.pumpDone) })
		<-s.pumpDone
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *session) pump() {
	defer close(s.pumpDone)
	s.srv.HandleConn(s.conn)
}

func (s *session) serverConfig(ssh.Context) *gossh.ServerConfig {
	return &gossh.ServerConfig{
		MaxAuthTries: -1,
		AuthLogCallback: func(conn gossh.ConnMetadata, method string, _ error) {
			if method == MethodPassword {
				return
			}
			s.deliver(newMessage(KindAuth, method, conn.User(), ""), string(conn.ClientVersion()))
		},
	}
}

func (s *session) onPassword(ctx ssh.Context, password string) bool {
	s.deliver(newMessage(KindAuth, MethodPassword, ctx.User(), password), ctx.ClientVersion())
	return false
}

func (s *session) onConnectionFailed(_ net.Conn, err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// deliver hands msg to the caller and blocks until it is answered or the
// session closes.
func (s *session) deliver(msg *Message, clientVersion string) {
	s.mu.Lock()
	if s.clientVersion == "" {
		s.clientVersion = clientVersion
	}
	s.mu.Unlock()

	s.reachOnce.Do(func() { close(s.reached) })

	select {
	case s.events <- msg:
	case <-s.closed:
		return
	}

	select {
	case <-msg.replied:
	case <-s.closed:
	}
}

func (s *session) handshakeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr == nil {
		return ErrHandshake
	}
	return fmt.Errorf("%w: %w", ErrHandshake, s.failErr)
}
