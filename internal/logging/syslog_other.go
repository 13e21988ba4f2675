// SPDX-License-Identifier: MPL-2.0

//go:build windows || plan9

package logging

func dialSyslog(string) (syslogSink, error) {
	return nil, ErrSyslogUnsupported
}
