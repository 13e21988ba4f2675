// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// FormatText is the human-readable console format.
	FormatText = "text"
	// FormatLogfmt writes key=value pairs.
	FormatLogfmt = "logfmt"
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
)

var (
	// ErrInvalidFormat is returned for an unknown log format name.
	ErrInvalidFormat = errors.New("invalid log format")
	// ErrSyslogUnsupported is returned on platforms without a syslog daemon.
	ErrSyslogUnsupported = errors.New("syslog is not supported on this platform")
)

type (
	// Options selects the sink, level and formatter.
	Options struct {
		// Name is the daemon identity: the syslog tag, or the console prefix
		// as "name[pid]".
		Name string
		// Level is one of debug, info, warn, error.
		Level string
		// Format is one of text, logfmt, json. Ignored by the syslog sink.
		Format string
		// Syslog sends records to the system log instead of Console.
		Syslog bool
		// Console receives records when Syslog is false. Defaults to os.Stderr.
		Console io.Writer
	}

	nopCloser struct{}
)

func (nopCloser) Close() error { return nil }

// New returns a logger and the closer releasing its sink.
func New(opts Options) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", opts.Level, err)
	}

	if opts.Syslog {
		sink, err := dialSyslog(opts.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("open syslog: %w", err)
		}
		w := &levelWriter{sink: sink}
		// syslog stamps time and tag itself.
		logger := log.NewWithOptions(w, log.Options{
			Level:     level,
			Formatter: log.LogfmtFormatter,
		})
		return logger, w, nil
	}

	formatter, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, nil, err
	}
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		Formatter:       formatter,
		Prefix:          opts.Name + "[" + strconv.Itoa(os.Getpid()) + "]",
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	return logger, nopCloser{}, nil
}

// ParseFormat maps a format name to a charmbracelet/log formatter.
func ParseFormat(name string) (log.Formatter, error) {
	switch name {
	case "", FormatText:
		return log.TextFormatter, nil
	case FormatLogfmt:
		return log.LogfmtFormatter, nil
	case FormatJSON:
		return log.JSONFormatter, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, name)
	}
}
