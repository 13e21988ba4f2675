// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/honeypotd/ssh-honeypotd/pkg/types"
)

const (
	// AppName is the default daemon name, used for the log tag and service name.
	AppName = "ssh-honeypotd"
	// EnvPrefix prefixes every environment override (SSH_HONEYPOTD_PORT, ...).
	EnvPrefix = "SSH_HONEYPOTD"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")

	capacityPolicies = []string{"hard", "soft"}
	logLevels        = []string{"debug", "info", "warn", "error"}
	logFormats       = []string{"text", "logfmt", "json"}
)

type (
	// Config holds the daemon configuration.
	Config struct {
		// Address is the address to bind to
		Address string `json:"address" mapstructure:"address"`
		// Port is the TCP port to bind to
		Port int `json:"port" mapstructure:"port"`
		// MaxSessions caps concurrent sessions
		MaxSessions int `json:"max_sessions" mapstructure:"max_sessions"`
		// CapacityPolicy is "hard" or "soft"
		CapacityPolicy string `json:"capacity_policy" mapstructure:"capacity_policy"`
		// HostKeys lists private key files, at most one per key type is used
		HostKeys []string `json:"host_keys" mapstructure:"host_keys"`
		// Name is the daemon identity used in logs
		Name string `json:"name" mapstructure:"name"`
		// PIDFile enables daemon mode when set
		PIDFile string `json:"pid_file" mapstructure:"pid_file"`
		// User and Group are the identity to switch to after binding
		User  string `json:"user" mapstructure:"user"`
		Group string `json:"group" mapstructure:"group"`
		// Foreground keeps the process attached to the terminal
		Foreground bool `json:"foreground" mapstructure:"foreground"`
		// NoSyslog logs to stderr instead of syslog (foreground only)
		NoSyslog bool `json:"no_syslog" mapstructure:"no_syslog"`
		// ServerVersion is the software version in the SSH identification string
		ServerVersion string `json:"server_version" mapstructure:"server_version"`
		// SessionTimeout closes idle connections
		SessionTimeout time.Duration `json:"session_timeout" mapstructure:"session_timeout"`
		// MaxSessionLifetime closes connections this long after accept, zero disables it
		MaxSessionLifetime time.Duration `json:"max_session_lifetime" mapstructure:"max_session_lifetime"`
		// ShutdownTimeout bounds the drain on termination
		ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
		// Log configures the log sink
		Log LogConfig `json:"log" mapstructure:"log"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level  string `json:"level" mapstructure:"level"`
		Format string `json:"format" mapstructure:"format"`
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0",
		Port:            int(types.DefaultListenPort),
		MaxSessions:     100,
		CapacityPolicy:  "hard",
		Name:            AppName,
		ServerVersion:   "OpenSSH",
		SessionTimeout:  120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks the values that environment variables and flags can set
// without passing through the CUE schema.
func (c *Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if err := types.ListenPort(c.Port).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions))
	}
	if !slices.Contains(capacityPolicies, c.CapacityPolicy) {
		errs = append(errs, fmt.Errorf("capacity_policy %q must be one of %v", c.CapacityPolicy, capacityPolicies))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if c.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session_timeout must be positive, got %s", c.SessionTimeout))
	}
	if c.MaxSessionLifetime < 0 {
		errs = append(errs, fmt.Errorf("max_session_lifetime must not be negative, got %s", c.MaxSessionLifetime))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q must be one of %v", c.Log.Level, logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q must be one of %v", c.Log.Format, logFormats))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Daemonize reports whether the process should detach. Without a PID file
// the daemon always stays in the foreground.
func (c *Config) Daemonize() bool {
	return c.PIDFile != "" && !c.Foreground
}

// UseSyslog reports whether logs go to syslog. --no-syslog is honoured only
// in the foreground.
func (c *Config) UseSyslog() bool {
	return c.Daemonize() || !c.NoSyslog
}
