// SPDX-License-Identifier: MPL-2.0

//go:build windows || plan9

package daemon

import (
	"errors"
	"fmt"
	"os"
)

// Without flock, an existing file means a running instance.
func openLocked(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s exists", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrPIDFileFailed, path, err)
	}
	return f, nil
}
