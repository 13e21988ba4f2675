// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

var (
	// ErrAlreadyRunning is returned when another process holds the PID file.
	ErrAlreadyRunning = errors.New("another instance is already running")
	// ErrPIDFileFailed is returned for every other PID file failure.
	ErrPIDFileFailed = errors.New("pid file failure")
)

// PIDFile is an open, locked PID file. The lock lives as long as the process
// keeps the file open.
type PIDFile struct {
	path string
	file *os.File
}

// CreatePIDFile opens or creates path and locks it. It fails with
// ErrAlreadyRunning when another process holds the lock.
func CreatePIDFile(path string) (*PIDFile, error) {
	f, err := openLocked(path)
	if err != nil {
		return nil, err
	}
	return &PIDFile{path: path, file: f}, nil
}

// Path returns the file location.
func (p *PIDFile) Path() string { return p.path }

// Write replaces the file contents with pid.
func (p *PIDFile) Write(pid int) error {
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate %s: %w", ErrPIDFileFailed, p.path, err)
	}
	if _, err := p.file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPIDFileFailed, p.path, err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", ErrPIDFileFailed, p.path, err)
	}
	return nil
}

// Remove unlinks the file and releases the lock. Safe to call more than once.
func (p *PIDFile) Remove() error {
	if p == nil || p.file == nil {
		return nil
	}
	// Unlink while still locked so a new instance cannot lock the old inode.
	rmErr := os.Remove(p.path)
	closeErr := p.file.Close()
	p.file = nil
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrPIDFileFailed, p.path, rmErr)
	}
	return closeErr
}

// ReadPID returns the process ID stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := string(data)
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s does not hold a pid: %w", ErrPIDFileFailed, path, err)
	}
	return pid, nil
}
