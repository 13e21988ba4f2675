// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error context (ActionableError) and a
// catalog of markdown help pages for startup failures, rendered with glamour.
package issue
