// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for ssh-honeypotd.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/honeypotd/ssh-honeypotd/internal/config"
	"github.com/honeypotd/ssh-honeypotd/pkg/types"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	cfgFile string
	verbose bool
}

// newRootCommand builds the command tree. Running the root command serves.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   config.AppName,
		Short: "A low-interaction SSH honeypot",
		Long: TitleStyle.Render(config.AppName) + SubtitleStyle.Render(" - A low-interaction SSH honeypot") + `

ssh-honeypotd accepts SSH connections, logs every username and password
offered by the client, and rejects all of them. No shell, command or
channel is ever granted.

` + SubtitleStyle.Render("Examples:") + `
  ssh-honeypotd --foreground --no-syslog --port 2222   Log to the terminal
  ssh-honeypotd --pid-file /run/ssh-honeypotd.pid      Run as a daemon
  ssh-honeypotd keygen --out /etc/ssh-honeypotd/host_ed25519
  ssh-honeypotd config show --format toml`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is /etc/ssh-honeypotd/config.cue)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and detailed errors")
	addServeFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newKeygenCommand())
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newServiceCommand(opts))

	return rootCmd
}

// addServeFlags registers one flag per configuration key. Names match the
// keys config.Load binds.
func addServeFlags(fs *pflag.FlagSet) {
	d := config.DefaultConfig()
	fs.StringP("address", "a", d.Address, "address to bind to")
	fs.IntP("port", "p", d.Port, "port to bind to")
	fs.IntP("max-sessions", "m", d.MaxSessions, "maximum number of concurrent sessions")
	fs.String("capacity-policy", d.CapacityPolicy, "session limit enforcement: hard or soft")
	fs.StringSliceP("host-key", "k", nil, "host private key file (repeatable)")
	fs.StringP("name", "n", d.Name, "daemon name used in logs")
	fs.StringP("pid-file", "P", "", "PID file; enables daemon mode")
	fs.StringP("user", "u", "", "user to run as after binding (default nobody, then daemon)")
	fs.StringP("group", "g", "", "group to run as (default: the user's primary group)")
	fs.BoolP("foreground", "f", false, "do not detach even with a PID file")
	fs.BoolP("no-syslog", "x", false, "log to stderr instead of syslog (foreground only)")
	fs.String("server-version", d.ServerVersion, "software version announced to clients")
	fs.Duration("session-timeout", d.SessionTimeout, "close connections idle for this long")
	fs.Duration("max-session-lifetime", d.MaxSessionLifetime, "close connections this long after accept (0 disables)")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "maximum time to drain sessions on shutdown")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "console log format: text, logfmt, json")
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, _, err := config.Load(cmd.Context(), config.LoadOptions{
		ConfigFilePath: opts.cfgFile,
		Flags:          cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(types.ExitFailure))
	}
}

