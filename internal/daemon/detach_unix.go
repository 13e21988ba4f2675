// SPDX-License-Identifier: MPL-2.0

//go:build !windows && !plan9

package daemon

import "syscall"

func sessionAttr() (*syscall.SysProcAttr, error) {
	return &syscall.SysProcAttr{Setsid: true}, nil
}
