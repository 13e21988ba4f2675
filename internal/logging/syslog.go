// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"sync"
)

type (
	// syslogSink is the subset of *syslog.Writer the logger needs.
	syslogSink interface {
		Debug(m string) error
		Info(m string) error
		Warning(m string) error
		Err(m string) error
		Close() error
	}

	// levelWriter receives logfmt records and forwards each one to syslog at
	// the priority named by its leading level field.
	levelWriter struct {
		mu   sync.Mutex
		sink syslogSink
	}
)

var levelField = []byte("level=")

func (w *levelWriter) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")

	send := w.sink.Info
	if rest, ok := bytes.CutPrefix(line, levelField); ok {
		level, msg, _ := bytes.Cut(rest, []byte(" "))
		line = msg
		switch string(level) {
		case "debug":
			send = w.sink.Debug
		case "warn":
			send = w.sink.Warning
		case "error", "fatal":
			send = w.sink.Err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := send(string(line)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *levelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sink.Close()
}
