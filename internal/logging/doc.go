// SPDX-License-Identifier: MPL-2.0

// Package logging builds the daemon's charmbracelet/log logger for either the
// console or the system log (facility AUTH).
package logging
