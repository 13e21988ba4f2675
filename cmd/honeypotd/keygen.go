// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/honeypotd/ssh-honeypotd/internal/hostkey"
	"github.com/honeypotd/ssh-honeypotd/internal/issue"

	"github.com/spf13/cobra"
	gossh "golang.org/x/crypto/ssh"
)

type keygenOptions struct {
	keyType string
	bits    int
	out     string
	comment string
	force   bool
}

func newKeygenCommand() *cobra.Command {
	opts := &keygenOptions{}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a host key",
		Long: `Generate an SSH host key in OpenSSH format.

The private key is written with mode 0600 and the public key next to it
with a .pub suffix. Pass the private key to --host-key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeygen(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.keyType, "type", "t", hostkey.TypeED25519,
		"key type: "+strings.Join(hostkey.Types, ", "))
	cmd.Flags().IntVarP(&opts.bits, "bits", "b", 0, "RSA key size (default 3072)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "private key output path (required)")
	cmd.Flags().StringVarP(&opts.comment, "comment", "C", "", "public key comment")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite an existing key")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runKeygen(cmd *cobra.Command, opts *keygenOptions) error {
	key, err := hostkey.Generate(opts.keyType, opts.bits)
	if err != nil {
		return err
	}

	if err := hostkey.Write(opts.out, key, opts.comment, opts.force); err != nil {
		return issue.NewErrorContext().
			WithOperation("write host key").
			WithResource(opts.out).
			WithSuggestion("Pass --force to replace an existing key").
			WithIssue(issue.HostKeyFailedId).
			Wrap(err).
			BuildError()
	}

	pub, err := gossh.NewPublicKey(key.Public())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, SuccessStyle.Render("✓")+" Wrote "+CmdStyle.Render(opts.out))
	fmt.Fprintln(w, SubtitleStyle.Render("  "+pub.Type()+" ")+CmdStyle.Render(gossh.FingerprintSHA256(pub)))
	return nil
}
