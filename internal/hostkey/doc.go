// SPDX-License-Identifier: MPL-2.0

// Package hostkey loads the SSH host keys presented to clients and generates
// new ones for the keygen command.
package hostkey
