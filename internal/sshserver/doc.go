// SPDX-License-Identifier: MPL-2.0

// Package sshserver is the connection-concurrency core of the honeypot.
//
// A single accept loop admits connections under a capacity limit and starts
// one worker goroutine per admitted connection. Each worker drives its session
// through handshake and an endless password-rejection loop, logging every
// attempt. A shared Registry tracks live connections; on Stop the server stops
// admitting, interrupts every live worker and joins them one at a time.
package sshserver
