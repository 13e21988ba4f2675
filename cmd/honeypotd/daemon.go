// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/honeypotd/ssh-honeypotd/internal/config"
	"github.com/honeypotd/ssh-honeypotd/internal/daemon"
	"github.com/honeypotd/ssh-honeypotd/internal/hostkey"
	"github.com/honeypotd/ssh-honeypotd/internal/issue"
	"github.com/honeypotd/ssh-honeypotd/internal/logging"
	"github.com/honeypotd/ssh-honeypotd/internal/sshengine"
	"github.com/honeypotd/ssh-honeypotd/internal/sshserver"
	"github.com/honeypotd/ssh-honeypotd/pkg/types"

	"github.com/charmbracelet/log"
)

// detachReadyTimeout bounds how long the parent waits for the detached child
// to report its startup outcome.
const detachReadyTimeout = 30 * time.Second

var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT}

type (
	// daemonDeps are the process-level operations startDaemon performs.
	// Tests replace the ones that would detach or change identity.
	daemonDeps struct {
		detach         func() (*daemon.Child, error)
		notifier       func() *daemon.Notifier
		dropPrivileges func(userName, groupName string) (*daemon.Credentials, error)
		stdout         io.Writer
		stderr         io.Writer
	}

	// daemonHandle is a started honeypot and the resources released on shutdown.
	daemonHandle struct {
		logger  *log.Logger
		logSink io.Closer
		srv     *sshserver.Server
		pidFile *daemon.PIDFile

		stopOnce sync.Once
		stopErr  error
	}

	// childStartupError carries the diagnostic a detached child rendered
	// before it exited.
	childStartupError struct {
		pid        int
		diagnostic string
	}
)

func defaultDaemonDeps() daemonDeps {
	return daemonDeps{
		detach:         daemon.Detach,
		notifier:       daemon.NotifierFromEnv,
		dropPrivileges: daemon.DropPrivileges,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

// startDaemon acquires every resource in order and starts serving. A nil
// handle with a nil error means there is nothing left to do in this process:
// the detached child came up, or another instance already runs. A detached
// child reports the outcome through ready; failures are reported by the caller.
func startDaemon(ctx context.Context, cfg *config.Config, deps daemonDeps, ready *daemon.Notifier) (*daemonHandle, error) {
	if cfg.Daemonize() && !daemon.IsDetached() {
		return nil, detachAndWait(ctx, deps)
	}

	// Messages before the configured sink opens go to the console.
	bootLogger, _, err := logging.New(logging.Options{
		Name:    cfg.Name,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Console: deps.stderr,
	})
	if err != nil {
		return nil, err
	}

	var pidFile *daemon.PIDFile
	if cfg.PIDFile != "" {
		pidFile, err = daemon.CreatePIDFile(cfg.PIDFile)
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			bootLogger.Info("Already running", "pid_file", cfg.PIDFile)
			if err := ready.Running("pid file " + cfg.PIDFile); err != nil {
				bootLogger.Warn("Cannot report startup status", "error", err)
			}
			return nil, nil
		}
		if err != nil {
			return nil, startupError("create PID file", cfg.PIDFile, issue.PIDFileFailedId, err)
		}
	}

	h, err := serveWithPIDFile(ctx, cfg, deps, bootLogger, pidFile)
	if err != nil {
		if rmErr := pidFile.Remove(); rmErr != nil {
			bootLogger.Warn("Cannot remove PID file", "path", cfg.PIDFile, "error", rmErr)
		}
		return nil, err
	}
	if err := ready.Ready(); err != nil {
		h.logger.Warn("Cannot report startup status", "error", err)
	}
	return h, nil
}

// detachAndWait starts the detached child and blocks until it has bound its
// listener or given up, so the exit status reflects the startup outcome.
func detachAndWait(ctx context.Context, deps daemonDeps) error {
	child, err := deps.detach()
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, detachReadyTimeout)
	defer cancel()
	status, detail, err := child.Wait(waitCtx)
	if err != nil {
		return startupError("start background process", "pid "+strconv.Itoa(child.PID), 0, err)
	}

	switch status {
	case daemon.StatusFailed:
		return &childStartupError{pid: child.PID, diagnostic: detail}
	case daemon.StatusRunning:
		fmt.Fprintln(deps.stdout, WarningStyle.Render("Already running")+" "+SubtitleStyle.Render("("+detail+")"))
	default:
		fmt.Fprintln(deps.stdout, SuccessStyle.Render("Started in the background")+" "+SubtitleStyle.Render(fmt.Sprintf("(pid %d)", child.PID)))
	}
	return nil
}

func serveWithPIDFile(ctx context.Context, cfg *config.Config, deps daemonDeps, bootLogger *log.Logger, pidFile *daemon.PIDFile) (*daemonHandle, error) {
	signers, err := hostkey.Load(cfg.HostKeys, bootLogger)
	if err != nil {
		return nil, startupError("load host keys", "", issue.HostKeyFailedId, err)
	}
	engine, err := sshengine.New(signers,
		sshengine.WithServerVersion(cfg.ServerVersion),
		sshengine.WithIdleTimeout(cfg.SessionTimeout),
		sshengine.WithMaxTimeout(cfg.MaxSessionLifetime),
	)
	if err != nil {
		return nil, startupError("create SSH engine", "", issue.HostKeyFailedId, err)
	}

	srvCfg := serverConfig(cfg)
	ln, err := sshserver.Listen(ctx, srvCfg)
	if err != nil {
		id := issue.BindFailedId
		if errors.Is(err, os.ErrPermission) && srvCfg.Port.IsPrivileged() {
			id = issue.PrivilegedPortId
		}
		return nil, startupError("listen", net.JoinHostPort(cfg.Address, srvCfg.Port.String()), id, err)
	}

	logger, logSink, err := logging.New(logging.Options{
		Name:    cfg.Name,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Syslog:  cfg.UseSyslog(),
		Console: deps.stderr,
	})
	if err != nil {
		_ = ln.Close()
		return nil, startupError("open log sink", "", 0, err)
	}

	fail := func(err error) (*daemonHandle, error) {
		_ = ln.Close()
		_ = logSink.Close()
		return nil, err
	}

	creds, err := deps.dropPrivileges(cfg.User, cfg.Group)
	if err != nil {
		return fail(startupError("drop privileges", cfg.User, issue.PrivilegeDropFailedId, err))
	}
	if creds != nil {
		logger.Info("Dropped privileges", "user", creds.User, "group", creds.Group, "uid", creds.UID, "gid", creds.GID)
	}

	if pidFile != nil {
		if err := pidFile.Write(os.Getpid()); err != nil {
			return fail(startupError("write PID file", pidFile.Path(), issue.PIDFileFailedId, err))
		}
	}

	srv, err := sshserver.New(srvCfg, engine,
		sshserver.WithLogger(logger),
		sshserver.WithListener(ln),
	)
	if err != nil {
		return fail(err)
	}
	if err := srv.Start(ctx); err != nil {
		return fail(startupError("start server", srvCfg.Address.String(), 0, err))
	}

	return &daemonHandle{logger: logger, logSink: logSink, srv: srv, pidFile: pidFile}, nil
}

// wait blocks until a termination signal, ctx cancellation or a server
// failure, and returns the server error in the last case.
func (h *daemonHandle) wait(ctx context.Context) error {
	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, terminationSignals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("Received termination signal", "signal", sig.String())
	case <-ctx.Done():
		h.logger.Info("Termination requested", "reason", context.Cause(ctx))
	case err, ok := <-h.srv.Err():
		if ok && err != nil {
			h.logger.Error("Server failed", "error", err)
			return err
		}
	}
	return nil
}

// shutdown stops the server, drains sessions and releases the PID file.
// Later calls return the first result.
func (h *daemonHandle) shutdown() error {
	h.stopOnce.Do(func() {
		err := h.srv.Stop()
		if rmErr := h.pidFile.Remove(); rmErr != nil {
			h.logger.Warn("Cannot remove PID file", "path", h.pidFile.Path(), "error", rmErr)
		}
		if closeErr := h.logSink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		h.stopErr = err
	})
	return h.stopErr
}

// Address returns the bound listener address.
func (h *daemonHandle) Address() string { return h.srv.Address() }

func (e *childStartupError) Error() string {
	return fmt.Sprintf("background process %d failed to start", e.pid)
}

func serverConfig(cfg *config.Config) sshserver.Config {
	return sshserver.Config{
		Address:         sshserver.HostAddress(cfg.Address),
		Port:            types.ListenPort(cfg.Port),
		MaxSessions:     cfg.MaxSessions,
		CapacityPolicy:  sshserver.CapacityPolicy(cfg.CapacityPolicy),
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

func startupError(operation, resource string, id issue.Id, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		Wrap(err)
	if id != 0 {
		ctx = ctx.WithIssue(id)
	}
	return ctx.BuildError()
}
