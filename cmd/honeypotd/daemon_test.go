// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/honeypotd/ssh-honeypotd/internal/daemon"
	"github.com/honeypotd/ssh-honeypotd/internal/testutil"
	"github.com/honeypotd/ssh-honeypotd/pkg/types"

	"github.com/spf13/cobra"
)

type fakeDaemon struct {
	stdout   *bytes.Buffer
	stderr   *testutil.LogBuffer
	detached int
	dropErr  error
}

func newFakeDaemon() *fakeDaemon {
	stderr, _ := testutil.NewLogBuffer()
	return &fakeDaemon{stdout: &bytes.Buffer{}, stderr: stderr}
}

func (f *fakeDaemon) deps() daemonDeps {
	return daemonDeps{
		detach: func() (*daemon.Child, error) {
			f.detached++
			r, w, err := os.Pipe()
			if err != nil {
				return nil, err
			}
			if err := daemon.NewNotifier(w).Ready(); err != nil {
				return nil, err
			}
			return daemon.NewChild(4242, r), nil
		},
		notifier: func() *daemon.Notifier { return nil },
		dropPrivileges: func(string, string) (*daemon.Credentials, error) {
			if f.dropErr != nil {
				return nil, f.dropErr
			}
			return &daemon.Credentials{User: "nobody", Group: "nogroup", UID: 65534, GID: 65534}, nil
		},
		stdout: f.stdout,
		stderr: f.stderr,
	}
}

// TestMain runs the daemon instead of the tests when the binary was
// re-executed as a detached child.
func TestMain(m *testing.M) {
	if daemon.IsDetached() {
		root := newRootCommand()
		root.SetArgs(os.Args[1:])
		if err := root.ExecuteContext(context.Background()); err != nil {
			os.Exit(int(types.ExitFailure))
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// serveArgs returns an empty config file and loopback serve flags. The empty
// config file keeps the host's /etc out of the test.
func serveArgs(t *testing.T, args ...string) (cfgFile string, flags []string) {
	t.Helper()
	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "config.cue")
	if err := os.WriteFile(cfgFile, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	flags = []string{
		"--address=127.0.0.1",
		"--port=0",
		"--no-syslog",
		"--log-format=logfmt",
		"--host-key=" + testutil.WriteHostKey(t, dir, "host_ed25519"),
	}
	return cfgFile, append(flags, args...)
}

// newServeCmd builds a bare command carrying the serve flags parsed from args.
func newServeCmd(t *testing.T, ctx context.Context, args ...string) (*cobra.Command, *rootOptions) {
	t.Helper()
	cfgFile, flags := serveArgs(t, args...)

	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd.Flags())
	if err := cmd.Flags().Parse(flags); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cmd.SetContext(ctx)
	return cmd, &rootOptions{cfgFile: cfgFile}
}

func waitForPID(t *testing.T, path string) {
	t.Helper()
	testutil.Eventually(t, 5*time.Second, func() bool {
		pid, err := daemon.ReadPID(path)
		return err == nil && pid == os.Getpid()
	}, "PID file was not written")
}

func TestServe_ForegroundLifecycle(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	cmd, opts := newServeCmd(t, ctx, "--foreground", "--pid-file="+pidPath)

	f := newFakeDaemon()
	errCh := make(chan error, 1)
	go func() { errCh <- serve(cmd, opts, f.deps()) }()

	waitForPID(t, pidPath)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve() did not return after cancellation")
	}

	if f.detached != 0 {
		t.Error("foreground run detached")
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("PID file not removed: %v", err)
	}
	out := f.stderr.String()
	for _, want := range []string{
		"Listening",
		"Dropped privileges",
		"user=nobody",
		"Termination requested",
		"Stopped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestServe_Detaches(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	cmd, opts := newServeCmd(t, context.Background(), "--pid-file="+pidPath)

	f := newFakeDaemon()
	if err := serve(cmd, opts, f.deps()); err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	if f.detached != 1 {
		t.Errorf("detached = %d, want 1", f.detached)
	}
	if !strings.Contains(f.stdout.String(), "Started in the background") || !strings.Contains(f.stdout.String(), "pid 4242") {
		t.Errorf("stdout = %q", f.stdout.String())
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("parent created the PID file")
	}
}

func TestServe_DetachedChildFailsToBind(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = busy.Close() })
	busyPort := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	cfgFile, flags := serveArgs(t, "--port="+busyPort, "--pid-file="+pidPath)

	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd.Flags())
	if err := cmd.Flags().Parse(flags); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cmd.SetContext(context.Background())
	opts := &rootOptions{cfgFile: cfgFile}

	f := newFakeDaemon()
	deps := f.deps()
	deps.detach = func() (*daemon.Child, error) {
		return daemon.Spawn(exe, append([]string{"serve", "--config", cfgFile}, flags...))
	}

	err = serve(cmd, opts, deps)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != types.ExitFailure {
		t.Fatalf("serve() error = %v, want exit code 1", err)
	}
	if strings.Contains(f.stdout.String(), "Started in the background") {
		t.Errorf("parent reported success: %q", f.stdout.String())
	}
	if !strings.Contains(f.stderr.String(), "Cannot listen for SSH connections") {
		t.Errorf("stderr missing the child's diagnostic:\n%s", f.stderr.String())
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("PID file left behind after startup failure")
	}
}

func TestServe_DetachedChildReports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		report  func(*daemon.Notifier) error
		wantErr bool
		stdout  string
		stderr  string
	}{
		{
			name:   "already running",
			report: func(n *daemon.Notifier) error { return n.Running("pid file /run/h.pid") },
			stdout: "Already running",
		},
		{
			name:    "failed",
			report:  func(n *daemon.Notifier) error { return n.Failed("Error: cannot load host keys\n") },
			wantErr: true,
			stderr:  "cannot load host keys",
		},
		{
			name:    "died silently",
			report:  func(*daemon.Notifier) error { return nil },
			wantErr: true,
			stderr:  "exited before reporting",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd, opts := newServeCmd(t, context.Background(), "--pid-file="+filepath.Join(t.TempDir(), "h.pid"))
			f := newFakeDaemon()
			deps := f.deps()
			deps.detach = func() (*daemon.Child, error) {
				r, w, err := os.Pipe()
				if err != nil {
					return nil, err
				}
				if err := tt.report(daemon.NewNotifier(w)); err != nil {
					return nil, err
				}
				_ = w.Close()
				return daemon.NewChild(77, r), nil
			}

			err := serve(cmd, opts, deps)
			if (err != nil) != tt.wantErr {
				t.Fatalf("serve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.stdout != "" && !strings.Contains(f.stdout.String(), tt.stdout) {
				t.Errorf("stdout = %q, want %q", f.stdout.String(), tt.stdout)
			}
			if tt.stderr != "" && !strings.Contains(f.stderr.String(), tt.stderr) {
				t.Errorf("stderr = %q, want %q", f.stderr.String(), tt.stderr)
			}
			if strings.Contains(f.stdout.String(), "Started in the background") {
				t.Error("parent reported success")
			}
		})
	}
}

func TestServe_AlreadyRunning(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	held, err := daemon.CreatePIDFile(pidPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = held.Remove() })

	cmd, opts := newServeCmd(t, context.Background(), "--foreground", "--pid-file="+pidPath)
	f := newFakeDaemon()
	if err := serve(cmd, opts, f.deps()); err != nil {
		t.Fatalf("serve() error = %v, want nil (exit 0)", err)
	}
	if !strings.Contains(f.stderr.String(), "Already running") {
		t.Errorf("log = %s", f.stderr.String())
	}
}

func TestServe_StartupFailures(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = busy.Close() })
	busyPort := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	tests := []struct {
		name    string
		args    []string
		dropErr error
		want    string
	}{
		{
			name: "port in use",
			args: []string{"--port=" + busyPort},
			want: "Cannot listen for SSH connections",
		},
		{
			name:    "privilege drop",
			dropErr: daemon.ErrNoUnprivilegedAccount,
			want:    "Cannot drop privileges",
		},
		{
			name: "invalid config",
			args: []string{"--max-sessions=0"},
			want: "max_sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
			args := append([]string{"--foreground", "--pid-file=" + pidPath}, tt.args...)
			cmd, opts := newServeCmd(t, context.Background(), args...)

			f := newFakeDaemon()
			f.dropErr = tt.dropErr
			err := serve(cmd, opts, f.deps())

			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != types.ExitFailure {
				t.Fatalf("serve() error = %v, want exit code 1", err)
			}
			if !strings.Contains(f.stderr.String(), tt.want) {
				t.Errorf("stderr missing %q:\n%s", tt.want, f.stderr.String())
			}
			if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
				t.Error("PID file left behind after startup failure")
			}
		})
	}
}

func TestProgram_StartStop(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	cmd, opts := newServeCmd(t, context.Background(), "--pid-file="+pidPath)
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Foreground = true

	f := newFakeDaemon()
	prg := &program{cfg: cfg, deps: f.deps()}
	if err := prg.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if prg.handle.Address() == "" {
		t.Error("no bound address after Start()")
	}
	waitForPID(t, pidPath)

	if err := prg.Stop(nil); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("PID file not removed by Stop()")
	}
}

func TestProgram_ExitsOnServerFailure(t *testing.T) {
	t.Parallel()

	pidPath := filepath.Join(t.TempDir(), "honeypot.pid")
	cmd, opts := newServeCmd(t, context.Background(), "--pid-file="+pidPath)
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Foreground = true

	exitCodes := make(chan int, 1)
	f := newFakeDaemon()
	prg := &program{cfg: cfg, deps: f.deps(), exit: func(code int) { exitCodes <- code }}
	if err := prg.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForPID(t, pidPath)

	prg.handle.srv.SendError(errors.New("accept tcp: use of closed network connection"))

	select {
	case code := <-exitCodes:
		if code != int(types.ExitFailure) {
			t.Errorf("exit code = %d, want %d", code, types.ExitFailure)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("program kept running after the server failed")
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("PID file not removed after server failure")
	}
	if !strings.Contains(f.stderr.String(), "Exiting after server failure") {
		t.Errorf("log missing failure exit:\n%s", f.stderr.String())
	}

	// A stop request from the manager afterwards is harmless.
	if err := prg.Stop(nil); err != nil {
		t.Errorf("Stop() after failure = %v", err)
	}
}

func TestServerConfig(t *testing.T) {
	t.Parallel()

	cmd, opts := newServeCmd(t, context.Background(), "--max-sessions=7", "--capacity-policy=soft", "--shutdown-timeout=3s")
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatal(err)
	}
	sc := serverConfig(cfg)
	if sc.Address != "127.0.0.1" || sc.Port != 0 || sc.MaxSessions != 7 {
		t.Errorf("serverConfig = %+v", sc)
	}
	if sc.CapacityPolicy != "soft" || sc.ShutdownTimeout != 3*time.Second {
		t.Errorf("serverConfig = %+v", sc)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}
