// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/honeypotd/ssh-honeypotd/internal/issue"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

var isTerminal = isatty.IsTerminal

// renderStartupError prints a fatal startup error followed by the catalog
// page of its issue, when it carries one.
func renderStartupError(stderr io.Writer, err error, verboseMode bool) {
	if err == nil {
		return
	}

	fmt.Fprintln(stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verboseMode))

	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.IssueID == 0 {
		return
	}

	if catalogEntry := issue.Get(ae.IssueID); catalogEntry != nil {
		rendered, renderErr := catalogEntry.Render(issueStyle(stderr))
		if renderErr != nil {
			log.Warn("failed to render issue catalog entry", "issueID", ae.IssueID, "error", renderErr)
			return
		}
		fmt.Fprint(stderr, rendered)
	}
}

// formatErrorForDisplay uses ActionableError.Format when available.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// issueStyle picks a glamour style: colors for terminals, plain text otherwise.
func issueStyle(w io.Writer) string {
	if f, ok := w.(interface{ Fd() uintptr }); ok && isTerminal(f.Fd()) {
		return "dark"
	}
	return "notty"
}
