// SPDX-License-Identifier: MPL-2.0

// Package daemon holds the process-level pieces of running as a system
// daemon: the locked PID file, dropping root privileges after the listener
// is bound, and detaching from the controlling terminal.
package daemon
