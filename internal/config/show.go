// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type (
	// fileView is the on-disk shape of Config, with durations as strings.
	fileView struct {
		Address         string   `toml:"address"`
		Port            int      `toml:"port"`
		MaxSessions     int      `toml:"max_sessions"`
		CapacityPolicy  string   `toml:"capacity_policy"`
		HostKeys        []string `toml:"host_keys"`
		Name            string   `toml:"name"`
		PIDFile         string   `toml:"pid_file"`
		User            string   `toml:"user"`
		Group           string   `toml:"group"`
		Foreground      bool     `toml:"foreground"`
		NoSyslog        bool     `toml:"no_syslog"`
		ServerVersion   string   `toml:"server_version"`
		SessionTimeout  string   `toml:"session_timeout"`
		MaxLifetime     string   `toml:"max_session_lifetime"`
		ShutdownTimeout string   `toml:"shutdown_timeout"`
		Log             logView  `toml:"log"`
	}

	logView struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	}
)

func (c *Config) view() fileView {
	hostKeys := c.HostKeys
	if hostKeys == nil {
		hostKeys = []string{}
	}
	return fileView{
		Address:         c.Address,
		Port:            c.Port,
		MaxSessions:     c.MaxSessions,
		CapacityPolicy:  c.CapacityPolicy,
		HostKeys:        hostKeys,
		Name:            c.Name,
		PIDFile:         c.PIDFile,
		User:            c.User,
		Group:           c.Group,
		Foreground:      c.Foreground,
		NoSyslog:        c.NoSyslog,
		ServerVersion:   c.ServerVersion,
		SessionTimeout:  c.SessionTimeout.String(),
		MaxLifetime:     c.MaxSessionLifetime.String(),
		ShutdownTimeout: c.ShutdownTimeout.String(),
		Log:             logView(c.Log),
	}
}

// GenerateTOML renders cfg as TOML.
func GenerateTOML(cfg *Config) (string, error) {
	out, err := toml.Marshal(cfg.view())
	if err != nil {
		return "", fmt.Errorf("marshal config as TOML: %w", err)
	}
	return string(out), nil
}

// GenerateCUE renders cfg as a CUE file that Load accepts.
func GenerateCUE(cfg *Config) string {
	v := cfg.view()
	var sb strings.Builder

	sb.WriteString("// ssh-honeypotd configuration\n\n")
	fmt.Fprintf(&sb, "address:         %q\n", v.Address)
	fmt.Fprintf(&sb, "port:            %d\n", v.Port)
	fmt.Fprintf(&sb, "max_sessions:    %d\n", v.MaxSessions)
	fmt.Fprintf(&sb, "capacity_policy: %q\n", v.CapacityPolicy)

	sb.WriteString("host_keys: [")
	for i, k := range v.HostKeys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", k)
	}
	sb.WriteString("]\n")

	fmt.Fprintf(&sb, "name:           %q\n", v.Name)
	fmt.Fprintf(&sb, "pid_file:       %q\n", v.PIDFile)
	fmt.Fprintf(&sb, "user:           %q\n", v.User)
	fmt.Fprintf(&sb, "group:          %q\n", v.Group)
	fmt.Fprintf(&sb, "foreground:     %v\n", v.Foreground)
	fmt.Fprintf(&sb, "no_syslog:      %v\n", v.NoSyslog)
	fmt.Fprintf(&sb, "server_version: %q\n", v.ServerVersion)

	fmt.Fprintf(&sb, "\nsession_timeout:      %q\n", v.SessionTimeout)
	fmt.Fprintf(&sb, "max_session_lifetime: %q\n", v.MaxLifetime)
	fmt.Fprintf(&sb, "shutdown_timeout:     %q\n", v.ShutdownTimeout)

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel:  %q\n", v.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", v.Log.Format)
	sb.WriteString("}\n")

	return sb.String()
}
