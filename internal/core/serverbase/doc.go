// SPDX-License-Identifier: MPL-2.0

// Package serverbase provides the lifecycle state machine shared by long-running
// network services, plus the process-wide termination flag that workers poll.
//
// A Base replaces ambient global state: it is constructed once per service,
// embedded in the concrete server, and handed by reference to every goroutine
// that needs to observe shutdown.
package serverbase
