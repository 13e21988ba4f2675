// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/honeypotd/ssh-honeypotd/internal/core/serverbase"
	"github.com/honeypotd/ssh-honeypotd/internal/sshengine"

	"github.com/charmbracelet/log"
)

type (
	// Server is the honeypot service context: lifecycle, termination flag,
	// listener, registry and engine.
	// A Server instance is single-use: once stopped or failed, create a new instance.
	Server struct {
		*serverbase.Base

		// Immutable configuration (set at creation, never modified)
		cfg    Config
		engine sshengine.Engine
		logger *log.Logger

		registry *Registry

		// Initialized during Start() - protected by lnMu
		lnMu       sync.Mutex
		listener   net.Listener
		addr       string
		acceptDone chan struct{}
	}

	// Option configures a Server.
	Option func(*Server)
)

// WithLogger sets the logger. The default logs to stderr with prefix "sshserver".
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener makes Start serve on an already bound listener instead of
// binding cfg.Address:cfg.Port itself.
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.listener = ln
	}
}

// New creates a server. The server is not started; call Start() to begin
// accepting connections.
func New(cfg Config, engine sshengine.Engine, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrInvalidServerConfig)
	}

	s := &Server{
		cfg:        cfg,
		engine:     engine,
		registry:   NewRegistry(),
		acceptDone: make(chan struct{}),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "sshserver",
		}),
	}
	s.Base = serverbase.NewBase(serverbase.WithOnTerminate(s.closeListener))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start binds (unless a listener was supplied) and launches the accept loop.
// It returns once the server is accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	s.lnMu.Lock()
	ln := s.listener
	s.lnMu.Unlock()

	if ln == nil {
		var err error
		ln, err = Listen(ctx, s.cfg)
		if err != nil {
			s.TransitionToFailed(err)
			return err
		}
	}

	s.lnMu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.lnMu.Unlock()

	s.Go(func() { s.acceptLoop(ln) })
	s.TransitionToRunning()

	s.logger.Info("Listening", "address", s.addr,
		"max_sessions", s.cfg.MaxSessions, "capacity_policy", s.cfg.CapacityPolicy.String())
	return nil
}

// Address returns the bound address (host:port), or "" before Start.
func (s *Server) Address() string {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return s.addr
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	_, portStr, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// LiveSessions returns the number of registered connections.
func (s *Server) LiveSessions() int {
	return s.registry.Len()
}

// Wait blocks until the server stops (either gracefully or due to error).
// Returns the error if the server failed, nil otherwise.
func (s *Server) Wait() error {
	s.WaitForShutdown()
	if s.State() == serverbase.StateFailed {
		return s.LastError()
	}
	return nil
}

// closeListener runs once, when the termination flag is first set.
func (s *Server) closeListener() {
	s.lnMu.Lock()
	ln := s.listener
	s.lnMu.Unlock()
	if ln != nil {
		_ = ln.Close() //nolint:errcheck // Accept returns net.ErrClosed either way
	}
}
