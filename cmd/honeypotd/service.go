// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/honeypotd/ssh-honeypotd/internal/config"
	"github.com/honeypotd/ssh-honeypotd/internal/issue"
	"github.com/honeypotd/ssh-honeypotd/pkg/types"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program runs the honeypot under a service manager.
type program struct {
	cfg  *config.Config
	deps daemonDeps
	// exit ends the process after a server failure; nil means os.Exit.
	exit func(code int)

	cancel context.CancelFunc
	handle *daemonHandle
	done   chan error
}

// Start starts serving and returns once the listener is bound, so the service
// manager sees startup failures.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := startDaemon(ctx, p.cfg, p.deps, nil)
	if err != nil {
		cancel()
		return err
	}
	if h == nil {
		cancel()
		return errors.New("another instance is already running")
	}

	p.cancel, p.handle = cancel, h
	p.done = make(chan error, 1)
	go func() {
		err := h.wait(ctx)
		if err != nil && ctx.Err() == nil {
			// Nothing accepts connections any more. Exit non-zero so the
			// service manager restarts the unit.
			h.logger.Error("Exiting after server failure", "error", err)
			_ = h.shutdown()
			p.exitProcess(int(types.ExitFailure))
		}
		p.done <- err
	}()
	return nil
}

func (p *program) exitProcess(code int) {
	if p.exit != nil {
		p.exit(code)
		return
	}
	os.Exit(code)
}

// Stop drains live sessions and releases the PID file.
func (p *program) Stop(service.Service) error {
	if p.handle == nil {
		return nil
	}
	p.cancel()
	<-p.done
	return p.handle.shutdown()
}

func newServiceCommand(opts *rootOptions) *cobra.Command {
	svcCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the system service",
		Long: `Install and control ssh-honeypotd as a system service
(systemd, SysV, upstart, launchd or the Windows service manager).

The installed service runs 'ssh-honeypotd service run' in the foreground
with the --config file given at install time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	for _, action := range []struct{ name, short string }{
		{"install", "Install the service"},
		{"uninstall", "Remove the service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the running service"},
		{"restart", "Restart the running service"},
	} {
		svcCmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return controlService(cmd, opts, action.name)
			},
		})
	}

	svcCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serviceStatus(cmd, opts)
		},
	})

	svcCmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, opts)
		},
	})

	return svcCmd
}

// serviceConfig describes the installed unit. The service always runs in the
// foreground; the manager owns the process lifetime.
func serviceConfig(cfg *config.Config, cfgFile string) (*service.Config, error) {
	args := []string{"service", "run"}
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        cfg.Name,
		DisplayName: "SSH honeypot (" + cfg.Name + ")",
		Description: "Low-interaction SSH honeypot that logs and rejects login attempts.",
		Arguments:   args,
		Dependencies: []string{
			"After=network-online.target",
			"Wants=network-online.target",
		},
		Option: service.KeyValue{
			"Restart": "on-failure",
		},
	}, nil
}

func newService(cmd *cobra.Command, opts *rootOptions) (service.Service, *program, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	cfg.Foreground = true

	svcCfg, err := serviceConfig(cfg, opts.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	prg := &program{cfg: cfg, deps: defaultDaemonDeps()}
	svc, err := service.New(prg, svcCfg)
	if err != nil {
		return nil, nil, serviceError("create service", cfg.Name, err)
	}
	return svc, prg, nil
}

func controlService(cmd *cobra.Command, opts *rootOptions, action string) error {
	svc, _, err := newService(cmd, opts)
	if err != nil {
		return err
	}
	if err := service.Control(svc, action); err != nil {
		return serviceError(action+" service", svc.String(), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("✓")+" "+action+" "+CmdStyle.Render(svc.String()))
	return nil
}

func serviceStatus(cmd *cobra.Command, opts *rootOptions) error {
	svc, _, err := newService(cmd, opts)
	if err != nil {
		return err
	}
	status, err := svc.Status()
	if err != nil && !errors.Is(err, service.ErrNotInstalled) {
		return serviceError("query service", svc.String(), err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprint(w, CmdStyle.Render(svc.String())+" ")
	switch {
	case errors.Is(err, service.ErrNotInstalled):
		fmt.Fprintln(w, WarningStyle.Render("not installed"))
		return &ExitError{Code: 3}
	case status == service.StatusRunning:
		fmt.Fprintln(w, SuccessStyle.Render("running"))
	case status == service.StatusStopped:
		fmt.Fprintln(w, WarningStyle.Render("stopped"))
		return &ExitError{Code: 3}
	default:
		fmt.Fprintln(w, SubtitleStyle.Render("unknown"))
		return &ExitError{Code: 4}
	}
	return nil
}

func runService(cmd *cobra.Command, opts *rootOptions) error {
	svc, _, err := newService(cmd, opts)
	if err != nil {
		renderStartupError(cmd.ErrOrStderr(), err, opts.verbose)
		return &ExitError{Code: types.ExitFailure, Err: err}
	}
	if err := svc.Run(); err != nil {
		return &ExitError{Code: types.ExitFailure, Err: err}
	}
	return nil
}

func serviceError(operation, resource string, err error) error {
	return issue.NewErrorContext().
		WithOperation(operation).
		WithResource(resource).
		WithIssue(issue.ServiceControlFailedId).
		Wrap(err).
		BuildError()
}
