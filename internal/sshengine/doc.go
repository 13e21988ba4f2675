// SPDX-License-Identifier: MPL-2.0

// Package sshengine adapts charmbracelet/ssh into a pull-based session API.
//
// The SSH library drives authentication through callbacks on its own
// goroutine. Each Session runs that goroutine as a pump and turns every
// authentication request into a Message that the caller receives with Next
// and answers with Deny or ReplyDefault. The pump blocks until the caller
// answers, so requests are observed strictly in receipt order. No answer
// ever grants access.
package sshengine
