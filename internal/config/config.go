// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/honeypotd/ssh-honeypotd/internal/issue"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//go:embed config_schema.cue
var configSchema string

// DefaultSearchPaths are tried in order when no config file is given.
var DefaultSearchPaths = []string{
	"/etc/ssh-honeypotd/config.cue",
	"ssh-honeypotd.cue",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"address":              "address",
	"port":                 "port",
	"max-sessions":         "max_sessions",
	"capacity-policy":      "capacity_policy",
	"host-key":             "host_keys",
	"name":                 "name",
	"pid-file":             "pid_file",
	"user":                 "user",
	"group":                "group",
	"foreground":           "foreground",
	"no-syslog":            "no_syslog",
	"server-version":       "server_version",
	"session-timeout":      "session_timeout",
	"max-session-lifetime": "max_session_lifetime",
	"shutdown-timeout":     "shutdown_timeout",
	"log-level":            "log.level",
	"log-format":           "log.format",
}

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// SearchPaths overrides DefaultSearchPaths when non-nil.
	SearchPaths []string
	// Flags are bound over every other source; only flags that were set win.
	Flags *pflag.FlagSet
}

// Load resolves the configuration and returns it with the path of the file
// that was read ("" when none).
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, "", err
		}
	}

	resolvedPath, err := readConfigFile(v, opts)
	if err != nil {
		return nil, "", err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("decode configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	if err := cfg.resolvePIDFile(); err != nil {
		return nil, "", err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check SSH_HONEYPOTD_* environment variables and command-line flags").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("address", defaults.Address)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("max_sessions", defaults.MaxSessions)
	v.SetDefault("capacity_policy", defaults.CapacityPolicy)
	v.SetDefault("host_keys", []string{})
	v.SetDefault("name", defaults.Name)
	v.SetDefault("pid_file", "")
	v.SetDefault("user", "")
	v.SetDefault("group", "")
	v.SetDefault("foreground", false)
	v.SetDefault("no_syslog", false)
	v.SetDefault("server_version", defaults.ServerVersion)
	v.SetDefault("session_timeout", defaults.SessionTimeout)
	v.SetDefault("max_session_lifetime", defaults.MaxSessionLifetime)
	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'ssh-honeypotd config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, loadFile(v, opts.ConfigFilePath)
	}

	paths := DefaultSearchPaths
	if opts.SearchPaths != nil {
		paths = opts.SearchPaths
	}
	for _, path := range paths {
		if fileExists(path) {
			return path, loadFile(v, path)
		}
	}
	// No config file is not an error.
	return "", nil
}

func loadFile(v *viper.Viper, path string) error {
	if err := loadCUEIntoViper(v, path); err != nil {
		return issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Check that the file contains valid CUE syntax").
			WithSuggestion("Verify the configuration values match the expected schema").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return nil
}

// resolvePIDFile makes a relative PID file path absolute against the working
// directory at startup, so a later chdir by the service manager does not move it.
func (c *Config) resolvePIDFile() error {
	if c.PIDFile == "" || filepath.IsAbs(c.PIDFile) {
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve PID file path: %w", err)
	}
	c.PIDFile = filepath.Join(wd, c.PIDFile)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
