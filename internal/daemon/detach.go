// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

// EnvDetached marks the re-executed child so it does not detach again.
const EnvDetached = "SSH_HONEYPOTD_DETACHED"

// ErrDetachUnsupported is returned on platforms without sessions.
var ErrDetachUnsupported = errors.New("detaching is not supported on this platform")

// IsDetached reports whether this process is the detached child.
func IsDetached() bool {
	return os.Getenv(EnvDetached) == "1"
}

// Detach starts a copy of the running binary, with the same arguments, as a
// detached child. The caller waits on the returned Child for the startup
// outcome before exiting.
func Detach() (*Child, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return Spawn(exe, os.Args[1:])
}

// Spawn starts exe in a new session with its standard streams on the null
// device and a pipe on which it reports its startup outcome.
func Spawn(exe string, args []string) (*Child, error) {
	cmd, err := detachCommand(exe, args, os.Environ())
	if err != nil {
		return nil, err
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create startup pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	err = cmd.Start()
	// The child holds the only write end from here on, so EOF means it exited.
	_ = w.Close()
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("start detached process: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("release detached process: %w", err)
	}
	return NewChild(pid, r), nil
}

func detachCommand(exe string, args, env []string) (*exec.Cmd, error) {
	attr, err := sessionAttr()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe, args...)
	cmd.Env = append(slices.DeleteFunc(slices.Clone(env), isDetachMarker),
		EnvDetached+"=1",
		EnvReadyFD+"="+strconv.Itoa(readyFD),
	)
	cmd.SysProcAttr = attr
	return cmd, nil
}

func isDetachMarker(kv string) bool {
	return strings.HasPrefix(kv, EnvDetached+"=") || strings.HasPrefix(kv, EnvReadyFD+"=")
}
