// SPDX-License-Identifier: MPL-2.0

//go:build !windows && !plan9

package daemon

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func isRoot() bool { return unix.Geteuid() == 0 }

// setIdentity clears supplementary groups, then sets gid before uid.
func setIdentity(c *Credentials) error {
	if err := unix.Setgroups([]int{}); err != nil {
		return fmt.Errorf("%w: setgroups: %w", ErrPrivilegeDrop, err)
	}
	if err := unix.Setgid(c.GID); err != nil {
		return fmt.Errorf("%w: setgid %d: %w", ErrPrivilegeDrop, c.GID, err)
	}
	if err := unix.Setuid(c.UID); err != nil {
		return fmt.Errorf("%w: setuid %d: %w", ErrPrivilegeDrop, c.UID, err)
	}
	if c.UID != 0 && unix.Setuid(0) == nil {
		return fmt.Errorf("%w: root could be regained after setuid %d", ErrPrivilegeDrop, c.UID)
	}
	return nil
}
