// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"net"
	"strconv"

	"github.com/honeypotd/ssh-honeypotd/internal/sshengine"
)

type (
	// endpoint is a host and port taken from a net.Addr.
	endpoint struct {
		host string
		port int
	}

	// connRecord is one accepted connection. Only its worker touches session
	// and state; id is written by the Registry under its lock, and cancel and
	// done are fixed before the record is registered.
	connRecord struct {
		id      uint64
		session sshengine.Session
		peer    endpoint
		local   endpoint
		version int
		state   SessionState

		cancel context.CancelFunc
		done   chan struct{}
	}
)

// unknownEndpoint stands in for an address that cannot be determined.
var unknownEndpoint = endpoint{host: "?", port: -1}

func endpointOf(addr net.Addr) endpoint {
	if addr == nil {
		return unknownEndpoint
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return unknownEndpoint
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return endpoint{host: host, port: -1}
	}
	return endpoint{host: host, port: port}
}

func (e endpoint) String() string {
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

func newRecord(sess sshengine.Session, cancel context.CancelFunc) *connRecord {
	return &connRecord{
		session: sess,
		peer:    endpointOf(sess.PeerAddr()),
		local:   endpointOf(sess.LocalAddr()),
		version: sess.Version(),
		state:   StateAccepted,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}
