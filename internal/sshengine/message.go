// SPDX-License-Identifier: MPL-2.0

package sshengine

import "sync"

// MethodPassword is the SSH user-auth method name for password authentication.
const MethodPassword = "password"

const (
	// KindAuth is a user-auth request; Method names the auth method.
	KindAuth MessageKind = iota + 1
	// KindOther is any message that is not a user-auth request.
	KindOther
)

type (
	// MessageKind classifies a client message.
	MessageKind int

	// Message is one client request awaiting a reply.
	Message struct {
		Kind     MessageKind
		Method   string
		User     string
		Password string

		replied chan struct{}
		once    sync.Once
	}
)

// String returns a human-readable representation of the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// IsPassword reports whether m is a password authentication attempt.
func (m *Message) IsPassword() bool {
	return m.Kind == KindAuth && m.Method == MethodPassword
}

func newMessage(kind MessageKind, method, user, password string) *Message {
	return &Message{
		Kind:     kind,
		Method:   method,
		User:     user,
		Password: password,
		replied:  make(chan struct{}),
	}
}

// release unblocks the callback waiting on this message. Safe to call more than once.
func (m *Message) release() {
	if m.replied == nil {
		return
	}
	m.once.Do(func() { close(m.replied) })
}
