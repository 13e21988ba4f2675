// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base instance.
type Option func(*Base)

// WithErrorChannel sets a custom error channel buffer size.
// Default buffer size is 1.
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, size)
	}
}

// WithOnTerminate registers a hook that runs exactly once, on the goroutine
// that first sets the termination flag.
func WithOnTerminate(fn func()) Option {
	return func(b *Base) {
		b.onTerminate = append(b.onTerminate, fn)
	}
}
