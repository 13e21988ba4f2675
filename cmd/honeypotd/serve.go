// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/honeypotd/ssh-honeypotd/internal/daemon"
	"github.com/honeypotd/ssh-honeypotd/pkg/types"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the honeypot (the default action)",
		Long: `Run the honeypot.

Without --pid-file, or with --foreground, the daemon stays attached to the
terminal. Otherwise it detaches, writes its PID and logs to syslog.
Termination signals stop admission and drain live sessions before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	return serve(cmd, opts, defaultDaemonDeps())
}

func serve(cmd *cobra.Command, opts *rootOptions, deps daemonDeps) error {
	ready := deps.notifier()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return startupFailed(deps.stderr, ready, err, opts.verbose)
	}

	ctx := cmd.Context()
	h, err := startDaemon(ctx, cfg, deps, ready)
	if err != nil {
		var childErr *childStartupError
		if errors.As(err, &childErr) {
			fmt.Fprint(deps.stderr, childErr.diagnostic)
			return &ExitError{Code: types.ExitFailure, Err: err}
		}
		return startupFailed(deps.stderr, ready, err, opts.verbose)
	}
	if h == nil {
		return nil
	}

	waitErr := h.wait(ctx)
	if err := h.shutdown(); err != nil && waitErr == nil {
		waitErr = err
	}
	if waitErr != nil {
		return &ExitError{Code: types.ExitFailure, Err: waitErr}
	}
	return nil
}

// startupFailed renders err for the operator. A detached child has no
// terminal, so the same diagnostic goes to the parent waiting on ready.
func startupFailed(stderr io.Writer, ready *daemon.Notifier, err error, verbose bool) error {
	if ready != nil {
		var buf bytes.Buffer
		renderStartupError(&buf, err, verbose)
		_ = ready.Failed(buf.String())
	}
	renderStartupError(stderr, err, verbose)
	return &ExitError{Code: types.ExitFailure, Err: err}
}
