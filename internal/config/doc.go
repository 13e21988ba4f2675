// SPDX-License-Identifier: MPL-2.0

// Package config loads the daemon configuration.
//
// Values are layered by viper, lowest precedence first: built-in defaults, an
// optional CUE file validated against the embedded #Config schema
// (config_schema.cue), SSH_HONEYPOTD_* environment variables, then
// command-line flags that were explicitly set.
package config
