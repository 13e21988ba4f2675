// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/honeypotd/ssh-honeypotd/internal/sshengine"
	"github.com/honeypotd/ssh-honeypotd/internal/testutil"

	"github.com/charmbracelet/log"
)

type (
	// fakeEngine hands out fakeSessions and lets tests pick them up in accept order.
	fakeEngine struct {
		mu       sync.Mutex
		calls    int
		failNext int // number of upcoming NewSession calls that fail
		prepare  func(i int, s *fakeSession)
		sessions chan *fakeSession
	}

	// fakeSession is driven by the test through its in and hangup channels.
	fakeSession struct {
		conn          net.Conn
		peer, local   net.Addr
		handshakeErr  error
		clientVersion string

		in       chan *sshengine.Message
		hangup   chan struct{}
		inLoop   chan struct{}
		loopOnce sync.Once

		closed    chan struct{}
		closeOnce sync.Once

		mu       sync.Mutex
		denied   []*sshengine.Message
		defaults []*sshengine.Message
	}

	// fakeListener delivers connections pushed by the test.
	fakeListener struct {
		conns     chan net.Conn
		errs      chan error
		closed    chan struct{}
		closeOnce sync.Once
		// ignoreClose keeps Accept working after Close.
		ignoreClose bool
	}

	fakeAddr string
)

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: make(chan *fakeSession, 64)}
}

func (e *fakeEngine) NewSession(conn net.Conn) (sshengine.Session, error) {
	e.mu.Lock()
	i := e.calls
	e.calls++
	fail := e.failNext > 0
	if fail {
		e.failNext--
	}
	prepare := e.prepare
	e.mu.Unlock()

	if fail {
		return nil, errors.New("out of memory")
	}
	s := &fakeSession{
		conn:   conn,
		in:     make(chan *sshengine.Message),
		hangup: make(chan struct{}),
		inLoop: make(chan struct{}),
		closed: make(chan struct{}),
	}
	if prepare != nil {
		prepare(i, s)
	}
	e.sessions <- s
	return s, nil
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEngine) next(t *testing.T) *fakeSession {
	t.Helper()
	select {
	case s := <-e.sessions:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no session created")
		return nil
	}
}

func (s *fakeSession) Handshake(ctx context.Context) error {
	if s.handshakeErr != nil {
		return s.handshakeErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return sshengine.ErrSessionClosed
	default:
		return nil
	}
}

func (s *fakeSession) Next(ctx context.Context, timeout time.Duration) (*sshengine.Message, error) {
	s.loopOnce.Do(func() { close(s.inLoop) })
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-s.in:
		return msg, nil
	case <-s.hangup:
		return nil, io.EOF
	case <-s.closed:
		return nil, sshengine.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

func (s *fakeSession) Deny(msg *sshengine.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = append(s.denied, msg)
	return nil
}

func (s *fakeSession) ReplyDefault(msg *sshengine.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = append(s.defaults, msg)
	return nil
}

func (s *fakeSession) PeerAddr() net.Addr {
	if s.peer != nil {
		return s.peer
	}
	return s.conn.RemoteAddr()
}

func (s *fakeSession) LocalAddr() net.Addr {
	if s.local != nil {
		return s.local
	}
	return s.conn.LocalAddr()
}

func (s *fakeSession) Version() int { return sshengine.ProtocolVersion }

func (s *fakeSession) ClientVersion() string {
	if s.clientVersion != "" {
		return s.clientVersion
	}
	return "SSH-2.0-fake"
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
	return nil
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) reachedLoop() bool {
	select {
	case <-s.inLoop:
		return true
	default:
		return false
	}
}

// send delivers msg to the worker, failing the test if it is not picked up.
func (s *fakeSession) send(t *testing.T, msg *sshengine.Message) {
	t.Helper()
	select {
	case s.in <- msg:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not receive message")
	}
}

func (s *fakeSession) denials() []*sshengine.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sshengine.Message(nil), s.denied...)
}

func (s *fakeSession) defaultReplies() []*sshengine.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*sshengine.Message(nil), s.defaults...)
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		conns:  make(chan net.Conn, 64),
		errs:   make(chan error, 8),
		closed: make(chan struct{}),
	}
}

func (l *fakeListener) Accept() (net.Conn, error) {
	if l.ignoreClose {
		select {
		case c := <-l.conns:
			return c, nil
		case err := <-l.errs:
			return nil, err
		}
	}
	select {
	case c := <-l.conns:
		return c, nil
	case err := <-l.errs:
		return nil, err
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeListener) Addr() net.Addr { return fakeAddr("0.0.0.0:22") }

// dial pushes a new in-memory connection and returns the client end.
func (l *fakeListener) dial(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	l.conns <- server
	return client
}

// mustPipe returns the server end of an in-memory connection.
func mustPipe(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	return server
}

func passwordMsg(user, password string) *sshengine.Message {
	return &sshengine.Message{Kind: sshengine.KindAuth, Method: sshengine.MethodPassword, User: user, Password: password}
}

// startFake builds and starts a server on a fake listener and engine.
func startFake(t *testing.T, cfg Config) (*Server, *fakeEngine, *fakeListener, *testutil.LogBuffer) {
	t.Helper()
	engine := newFakeEngine()
	ln := newFakeListener()
	logs, logger := testutil.NewLogBuffer()
	srv := startWith(t, cfg, engine, ln, logger)
	return srv, engine, ln, logs
}

func startWith(t *testing.T, cfg Config, engine sshengine.Engine, ln net.Listener, logger *log.Logger) *Server {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	srv, err := New(cfg, engine, WithListener(ln), WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(testutil.DeferStop(t, srv))
	return srv
}
