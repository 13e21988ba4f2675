// SPDX-License-Identifier: MPL-2.0

//go:build !windows && !plan9

package logging

import "log/syslog"

func dialSyslog(tag string) (syslogSink, error) {
	return syslog.New(syslog.LOG_AUTH|syslog.LOG_INFO, tag)
}
