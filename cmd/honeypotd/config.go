// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/honeypotd/ssh-honeypotd/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `config` command tree.
func newConfigCommand(opts *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Long: `Inspect the configuration.

Values are resolved in this order, later sources winning:
  - built-in defaults
  - the CUE config file (--config, or /etc/ssh-honeypotd/config.cue)
  - SSH_HONEYPOTD_* environment variables (SSH_HONEYPOTD_LOG_LEVEL, ...)
  - command-line flags`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd, opts, format)
		},
	}
	showCmd.Flags().StringVar(&format, "format", "cue", "output format: cue or toml")
	cfgCmd.AddCommand(showCmd)

	return cfgCmd
}

func showConfig(cmd *cobra.Command, opts *rootOptions, format string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch format {
	case "cue":
		fmt.Fprint(w, config.GenerateCUE(cfg))
	case "toml":
		out, err := config.GenerateTOML(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(w, out)
	default:
		return fmt.Errorf("unknown format %q (want cue or toml)", format)
	}
	return nil
}
