// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestCatalogComplete(t *testing.T) {
	t.Parallel()

	for id := BindFailedId; id <= ServiceControlFailedId; id++ {
		iss := Get(id)
		if iss == nil {
			t.Errorf("no catalog entry for id %d", id)
			continue
		}
		if iss.Id() != id {
			t.Errorf("entry for %d reports id %d", id, iss.Id())
		}
		if strings.TrimSpace(string(iss.MarkdownMsg())) == "" {
			t.Errorf("entry %d has no text", id)
		}
	}
	if got := len(Values()); got != int(ServiceControlFailedId) {
		t.Errorf("Values() has %d entries, want %d", got, ServiceControlFailedId)
	}
	if Get(Id(0)) != nil {
		t.Error("Get(0) should be nil")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := Get(PrivilegedPortId).Render("notty")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"privileged port", "setcap", "capabilities.7"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered page missing %q:\n%s", want, out)
		}
	}
}

func TestExtLinksIsCopy(t *testing.T) {
	t.Parallel()

	links := Get(PrivilegedPortId).ExtLinks()
	links[0] = "changed"
	if Get(PrivilegedPortId).ExtLinks()[0] == "changed" {
		t.Error("ExtLinks must return a copy")
	}
}

func TestActionableError(t *testing.T) {
	t.Parallel()

	cause := errors.New("address already in use")

	tests := []struct {
		name    string
		err     *ActionableError
		want    string
		verbose []string
	}{
		{
			name: "operation only",
			err:  NewErrorContext().WithOperation("bind listener").Build(),
			want: "failed to bind listener",
		},
		{
			name: "full",
			err: NewErrorContext().
				WithOperation("bind listener").
				WithResource("0.0.0.0:22").
				WithSuggestion("stop sshd").
				WithSuggestion("use --port").
				WithIssue(BindFailedId).
				Wrap(cause).
				Build(),
			want:    "failed to bind listener: 0.0.0.0:22: address already in use",
			verbose: []string{"• stop sshd", "• use --port", "Error chain:", "1. address already in use"},
		},
		{
			name: "wrap helper",
			err:  WrapWithContext(cause, "write PID file", "/run/x.pid"),
			want: "failed to write PID file: /run/x.pid: address already in use",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			formatted := tt.err.Format(true)
			for _, want := range tt.verbose {
				if !strings.Contains(formatted, want) {
					t.Errorf("Format(true) missing %q:\n%s", want, formatted)
				}
			}
			if tt.err.Cause != nil && !errors.Is(tt.err, tt.err.Cause) {
				t.Error("errors.Is should reach the cause")
			}
		})
	}

	if NewErrorContext().Build() != nil || NewErrorContext().BuildError() != nil {
		t.Error("Build without operation should return nil")
	}
	if WrapWithContext(nil, "x", "y") != nil {
		t.Error("WrapWithContext(nil) should return nil")
	}
	if got := NewErrorContext().WithOperation("x").WithIssue(HostKeyFailedId).Build().IssueID; got != HostKeyFailedId {
		t.Errorf("IssueID = %d", got)
	}
}
