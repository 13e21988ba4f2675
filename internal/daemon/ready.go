// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// EnvReadyFD names the descriptor on which a detached child reports how its
// startup went.
const EnvReadyFD = "SSH_HONEYPOTD_READY_FD"

// readyFD is where ExtraFiles[0] lands in the child.
const readyFD = 3

const (
	// StatusReady: the listener is bound and sessions are being served.
	StatusReady ReadyStatus = "ready"
	// StatusRunning: another instance holds the PID file.
	StatusRunning ReadyStatus = "running"
	// StatusFailed: startup failed; the detail carries the diagnostic.
	StatusFailed ReadyStatus = "failed"
)

// ErrNoStatus is returned by Child.Wait when the child closes its end of the
// pipe without reporting, usually because it died.
var ErrNoStatus = errors.New("background process exited before reporting its startup status")

type (
	// ReadyStatus is the startup outcome a detached child reports.
	ReadyStatus string

	// Notifier is the child's end of the startup pipe. Only the first report
	// is delivered. A nil Notifier discards reports.
	Notifier struct {
		mu sync.Mutex
		w  io.WriteCloser
	}

	// Child is a detached process whose startup outcome is still pending.
	Child struct {
		PID    int
		status io.ReadCloser
	}
)

// NewNotifier reports through w and closes it after the first report.
func NewNotifier(w io.WriteCloser) *Notifier {
	return &Notifier{w: w}
}

// NotifierFromEnv returns the notifier inherited from the parent, or nil when
// this process is not a detached child.
func NotifierFromEnv() *Notifier {
	if !IsDetached() {
		return nil
	}
	fd, err := strconv.Atoi(os.Getenv(EnvReadyFD))
	if err != nil || fd < readyFD {
		return nil
	}
	_ = os.Unsetenv(EnvReadyFD)
	f := os.NewFile(uintptr(fd), "startup-status")
	if f == nil {
		return nil
	}
	return NewNotifier(f)
}

// Ready reports that the daemon is serving.
func (n *Notifier) Ready() error { return n.report(StatusReady, "") }

// Running reports that another instance already runs.
func (n *Notifier) Running(detail string) error { return n.report(StatusRunning, detail) }

// Failed reports a startup failure with the diagnostic the parent prints.
func (n *Notifier) Failed(diagnostic string) error { return n.report(StatusFailed, diagnostic) }

func (n *Notifier) report(status ReadyStatus, detail string) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	w := n.w
	n.w = nil
	n.mu.Unlock()
	if w == nil {
		return nil
	}

	_, err := io.WriteString(w, string(status)+"\n"+detail)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("report startup status: %w", err)
	}
	return nil
}

// NewChild tracks a started process that reports on status.
func NewChild(pid int, status io.ReadCloser) *Child {
	return &Child{PID: pid, status: status}
}

// Wait blocks until the child reports or exits, or ctx ends.
func (c *Child) Wait(ctx context.Context) (ReadyStatus, string, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(c.status)
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		_ = c.status.Close()
		return "", "", fmt.Errorf("wait for background process %d: %w", c.PID, ctx.Err())
	case r := <-ch:
		_ = c.status.Close()
		if r.err != nil {
			return "", "", fmt.Errorf("read startup status: %w", r.err)
		}
		return parseStatus(r.data)
	}
}

func parseStatus(data []byte) (ReadyStatus, string, error) {
	line, detail, _ := strings.Cut(string(data), "\n")
	switch status := ReadyStatus(line); status {
	case StatusReady, StatusRunning, StatusFailed:
		return status, detail, nil
	case "":
		return "", "", ErrNoStatus
	default:
		return "", "", fmt.Errorf("unexpected startup status %q", line)
	}
}
