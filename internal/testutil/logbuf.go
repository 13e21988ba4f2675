// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// LogBuffer is a goroutine-safe sink for a charmbracelet logger.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogBuffer returns a buffer and a debug-level logfmt logger that writes to it.
func NewLogBuffer() (*LogBuffer, *log.Logger) {
	b := &LogBuffer{}
	logger := log.NewWithOptions(b, log.Options{
		Level:     log.DebugLevel,
		Formatter: log.LogfmtFormatter,
	})
	return b, logger
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the non-empty lines whose text contains substr, in write order.
func (b *LogBuffer) Lines(substr string) []string {
	var out []string
	for line := range strings.SplitSeq(b.String(), "\n") {
		if line != "" && strings.Contains(line, substr) {
			out = append(out, line)
		}
	}
	return out
}
