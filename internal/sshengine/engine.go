// SPDX-License-Identifier: MPL-2.0

package sshengine

import (
	"context"
	"errors"
	"net"
	"time"

	gossh "golang.org/x/crypto/ssh"
)

const (
	// DefaultServerVersion is the software version advertised after "SSH-2.0-".
	DefaultServerVersion = "OpenSSH"
	// DefaultIdleTimeout closes a connection that has been silent this long.
	DefaultIdleTimeout = 120 * time.Second
	// ProtocolVersion is the only SSH protocol major version served.
	ProtocolVersion = 2
)

var (
	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("ssh session closed")
	// ErrHandshake is returned by Handshake when the peer never reached authentication.
	ErrHandshake = errors.New("ssh handshake failed")
	// ErrNoHostKeys is returned by New when no host key signer is supplied.
	ErrNoHostKeys = errors.New("no host keys configured")
	// ErrNilConn is returned by NewSession when given a nil connection.
	ErrNilConn = errors.New("nil connection")
)

type (
	// Engine creates protocol sessions from accepted raw connections.
	Engine interface {
		NewSession(conn net.Conn) (Session, error)
	}

	// Session is a single SSH connection driven by its caller.
	Session interface {
		// Handshake blocks until the peer has completed key exchange and sent
		// its first authentication request, or the attempt failed.
		Handshake(ctx context.Context) error
		// Next waits up to timeout for the next client message. It returns
		// (nil, nil) when the timeout elapses with nothing received and
		// io.EOF once the peer has gone away.
		Next(ctx context.Context, timeout time.Duration) (*Message, error)
		// Deny rejects an authentication request, advertising password as the
		// only method that can continue.
		Deny(msg *Message) error
		// ReplyDefault sends the generic failure reply for msg.
		ReplyDefault(msg *Message) error
		PeerAddr() net.Addr
		LocalAddr() net.Addr
		// Version returns the SSH protocol major version.
		Version() int
		// ClientVersion returns the identification string sent by the peer.
		ClientVersion() string
		// Close disconnects the peer and releases the session. Idempotent.
		Close() error
	}

	// Server is the charmbracelet/ssh backed Engine.
	Server struct {
		signers     []gossh.Signer
		version     string
		idleTimeout time.Duration
		maxTimeout  time.Duration
	}

	// Option configures a Server.
	Option func(*Server)
)

// WithServerVersion sets the software version advertised in the identification string.
func WithServerVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// WithIdleTimeout sets the per-connection idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithMaxTimeout sets an absolute lifetime for each connection. Zero disables it.
func WithMaxTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.maxTimeout = d
	}
}

// New creates an engine presenting the given host keys.
func New(signers []gossh.Signer, opts ...Option) (*Server, error) {
	if len(signers) == 0 {
		return nil, ErrNoHostKeys
	}
	s := &Server{
		signers:     signers,
		version:     DefaultServerVersion,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ServerVersion returns the full identification string the engine sends.
func (s *Server) ServerVersion() string {
	return "SSH-2.0-" + s.version
}

// NewSession wraps conn. The protocol exchange does not start until Handshake.
func (s *Server) NewSession(conn net.Conn) (Session, error) {
	if conn == nil {
		return nil, ErrNilConn
	}
	sess, err := newSession(s, conn)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
