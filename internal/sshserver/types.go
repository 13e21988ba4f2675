// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/honeypotd/ssh-honeypotd/pkg/types"
)

const (
	// CapacityHard checks the limit and registers in one locked step.
	CapacityHard CapacityPolicy = "hard"
	// CapacitySoft registers first and compares the pre-insertion count to the
	// limit afterwards, so the live count can briefly exceed it by one.
	CapacitySoft CapacityPolicy = "soft"

	// DefaultMaxSessions bounds concurrent sessions when no limit is configured.
	DefaultMaxSessions = 100
	// DefaultPollInterval is the receive tick of the auth loop.
	DefaultPollInterval = 100 * time.Millisecond
)

var (
	// ErrInvalidHostAddress is the sentinel error wrapped by InvalidHostAddressError.
	ErrInvalidHostAddress = errors.New("invalid host address")
	// ErrInvalidCapacityPolicy is the sentinel error wrapped by InvalidCapacityPolicyError.
	ErrInvalidCapacityPolicy = errors.New("invalid capacity policy")
	// ErrInvalidServerConfig is the sentinel error wrapped by InvalidServerConfigError.
	ErrInvalidServerConfig = errors.New("invalid SSH server config")

	// ErrAllocation is logged when the engine cannot wrap an accepted connection.
	ErrAllocation = errors.New("cannot allocate connection")
	// ErrCapacityExceeded is logged when a connection is rejected by the limit.
	ErrCapacityExceeded = errors.New("too many connections")
	// ErrWorkerLaunch is logged when a worker cannot be started.
	ErrWorkerLaunch = errors.New("cannot start worker")
	// ErrShutdownTimeout is returned when live sessions outlast the shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

type (
	// HostAddress represents a network host address (IP or hostname) for server binding.
	// A valid address must be non-empty and not whitespace-only.
	HostAddress string

	// CapacityPolicy selects how the session limit is enforced.
	CapacityPolicy string

	// InvalidHostAddressError is returned when a HostAddress value is
	// empty or whitespace-only.
	InvalidHostAddressError struct {
		Value HostAddress
	}

	// InvalidCapacityPolicyError is returned for an unknown CapacityPolicy.
	InvalidCapacityPolicyError struct {
		Value CapacityPolicy
	}

	// InvalidServerConfigError collects field-level validation errors of a Config.
	InvalidServerConfigError struct {
		FieldErrors []error
	}

	// Config holds immutable configuration for the server.
	Config struct {
		// Address is the address to bind to (default: 0.0.0.0)
		Address HostAddress
		// Port is the port to listen on (default: 22, 0 = auto-select)
		Port types.ListenPort
		// MaxSessions is the maximum number of concurrent sessions
		MaxSessions int
		// CapacityPolicy selects hard or soft enforcement of MaxSessions
		CapacityPolicy CapacityPolicy
		// PollInterval is the auth loop receive tick
		PollInterval time.Duration
		// ShutdownTimeout bounds the drain of live sessions on Stop
		ShutdownTimeout time.Duration
	}
)

// String returns the string representation of the HostAddress.
func (h HostAddress) String() string { return string(h) }

// Validate returns nil if the HostAddress is valid (non-empty and not whitespace-only),
// or an error wrapping ErrInvalidHostAddress if it is not.
func (h HostAddress) Validate() error {
	if strings.TrimSpace(string(h)) == "" {
		return &InvalidHostAddressError{Value: h}
	}
	return nil
}

// String returns the string representation of the CapacityPolicy.
func (p CapacityPolicy) String() string { return string(p) }

// Validate returns nil for "hard" and "soft".
func (p CapacityPolicy) Validate() error {
	switch p {
	case CapacityHard, CapacitySoft:
		return nil
	default:
		return &InvalidCapacityPolicyError{Value: p}
	}
}

// Error implements the error interface for InvalidHostAddressError.
func (e *InvalidHostAddressError) Error() string {
	return fmt.Sprintf("invalid host address %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostAddress for errors.Is() compatibility.
func (e *InvalidHostAddressError) Unwrap() error { return ErrInvalidHostAddress }

// Error implements the error interface for InvalidCapacityPolicyError.
func (e *InvalidCapacityPolicyError) Error() string {
	return fmt.Sprintf("invalid capacity policy %q (valid: hard, soft)", e.Value)
}

// Unwrap returns ErrInvalidCapacityPolicy for errors.Is() compatibility.
func (e *InvalidCapacityPolicyError) Unwrap() error { return ErrInvalidCapacityPolicy }

// Error implements the error interface for InvalidServerConfigError.
func (e *InvalidServerConfigError) Error() string {
	return fmt.Sprintf("invalid SSH server config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidServerConfig for errors.Is() compatibility.
func (e *InvalidServerConfigError) Unwrap() error { return ErrInvalidServerConfig }

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Address:         "0.0.0.0",
		Port:            types.DefaultListenPort,
		MaxSessions:     DefaultMaxSessions,
		CapacityPolicy:  CapacityHard,
		PollInterval:    DefaultPollInterval,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks every field and returns an *InvalidServerConfigError listing
// all problems, or nil.
func (c Config) Validate() error {
	var errs []error
	if err := c.Address.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max sessions must be at least 1, got %d", c.MaxSessions))
	}
	if err := c.CapacityPolicy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if len(errs) > 0 {
		return &InvalidServerConfigError{FieldErrors: errs}
	}
	return nil
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.CapacityPolicy == "" {
		c.CapacityPolicy = d.CapacityPolicy
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
