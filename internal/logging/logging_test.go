// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

type fakeSink struct {
	entries []string
	closed  bool
}

func (f *fakeSink) record(prio string) func(string) error {
	return func(m string) error {
		f.entries = append(f.entries, prio+" "+m)
		return nil
	}
}

func (f *fakeSink) Debug(m string) error   { return f.record("debug")(m) }
func (f *fakeSink) Info(m string) error    { return f.record("info")(m) }
func (f *fakeSink) Warning(m string) error { return f.record("warning")(m) }
func (f *fakeSink) Err(m string) error     { return f.record("err")(m) }
func (f *fakeSink) Close() error           { f.closed = true; return nil }

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Options{
		Name:    "honeypot",
		Level:   "warn",
		Format:  FormatLogfmt,
		Console: &buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()

	logger.Info("Listening")
	logger.Warn("Failed password", "user", "root", "password", "toor123")

	out := buf.String()
	if strings.Contains(out, "Listening") {
		t.Errorf("info record written at warn level: %s", out)
	}
	for _, want := range []string{
		"prefix=honeypot[" + strconv.Itoa(os.Getpid()) + "]",
		`msg="Failed password"`,
		"user=root",
		"password=toor123",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()

	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("New() accepted an unknown level")
	}
	if _, _, err := New(Options{Level: "info", Format: "xml"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("New() error = %v, want ErrInvalidFormat", err)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want log.Formatter
	}{
		{"", log.TextFormatter},
		{FormatText, log.TextFormatter},
		{FormatLogfmt, log.LogfmtFormatter},
		{FormatJSON, log.JSONFormatter},
	}
	for _, tt := range tests {
		t.Run("format="+tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFormat(tt.name)
			if err != nil {
				t.Fatalf("ParseFormat(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLevelWriter_Priorities(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	w := &levelWriter{sink: sink}
	logger := log.NewWithOptions(w, log.Options{
		Level:     log.DebugLevel,
		Formatter: log.LogfmtFormatter,
	})

	logger.Debug("Handshake started")
	logger.Info("Stopped")
	logger.Warn("Failed password", "user", "admin")
	logger.Error("Too many connections")

	want := []string{
		"debug msg=\"Handshake started\"",
		"info msg=Stopped",
		"warning msg=\"Failed password\" user=admin",
		"err msg=\"Too many connections\"",
	}
	if len(sink.entries) != len(want) {
		t.Fatalf("entries = %q, want %d", sink.entries, len(want))
	}
	for i := range want {
		if sink.entries[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, sink.entries[i], want[i])
		}
	}

	if err := w.Close(); err != nil || !sink.closed {
		t.Errorf("Close() = %v, closed = %v", err, sink.closed)
	}
}

func TestLevelWriter_NoLevelField(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	w := &levelWriter{sink: sink}
	n, err := w.Write([]byte("plain line\n"))
	if err != nil || n != len("plain line\n") {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if len(sink.entries) != 1 || sink.entries[0] != "info plain line" {
		t.Errorf("entries = %q", sink.entries)
	}
}
