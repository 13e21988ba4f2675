// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	BindFailedId Id = iota + 1
	PrivilegedPortId
	HostKeyFailedId
	PIDFileFailedId
	ConfigLoadFailedId
	PrivilegeDropFailedId
	ServiceControlFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the page with the named glamour style ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	bindFailedIssue = &Issue{
		id: BindFailedId,
		mdMsg: `
# Cannot listen for SSH connections

The listening socket could not be created.

## Things you can try
- Check that no other daemon (usually **sshd**) already owns the port:
~~~
$ ss -ltnp 'sport = :22'
~~~
- Pick a different address or port with ` + "`--address`" + ` and ` + "`--port`" + `.
- Make sure the address is assigned to a local interface.`,
	}

	privilegedPortIssue = &Issue{
		id: PrivilegedPortId,
		mdMsg: `
# Permission denied binding a privileged port

Ports below 1024 need root or the ` + "`CAP_NET_BIND_SERVICE`" + ` capability.

## Things you can try
- Start the daemon as root; it drops privileges after binding (see ` + "`--user`" + `).
- Grant the capability to the binary:
~~~
$ sudo setcap cap_net_bind_service=+ep $(command -v ssh-honeypotd)
~~~
- Listen on a high port and redirect 22 to it with your firewall.`,
		extLinks: []HttpLink{"https://man7.org/linux/man-pages/man7/capabilities.7.html"},
	}

	hostKeyFailedIssue = &Issue{
		id: HostKeyFailedId,
		mdMsg: `
# No usable host key

The daemon needs at least one SSH host key to present to clients.

## Things you can try
- Generate one:
~~~
$ ssh-honeypotd keygen --type ed25519 --out /etc/ssh-honeypotd/host_ed25519
~~~
- Point ` + "`--host-key`" + ` at readable OpenSSH, PEM or PKCS#8 private keys.`,
	}

	pidFileFailedIssue = &Issue{
		id: PIDFileFailedId,
		mdMsg: `
# Cannot create the PID file

## Things you can try
- Make sure the directory exists and is writable by the starting user.
- Remove a stale file left behind by a crashed instance.
- Run in the foreground without a PID file (omit ` + "`--pid-file`" + `).`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Invalid configuration

The configuration file could not be parsed or did not match the schema.

## Things you can try
- Print the effective configuration:
~~~
$ ssh-honeypotd config show
~~~
- Compare your file with the field list in the output above.`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	privilegeDropFailedIssue = &Issue{
		id: PrivilegeDropFailedId,
		mdMsg: `
# Cannot drop privileges

The daemon refuses to serve connections as root.

## Things you can try
- Create an unprivileged account, or pass an existing one with ` + "`--user`" + ` and ` + "`--group`" + `.
- The defaults are ` + "`nobody`" + `, then ` + "`daemon`" + `.`,
	}

	serviceControlFailedIssue = &Issue{
		id: ServiceControlFailedId,
		mdMsg: `
# Service manager request failed

## Things you can try
- Run the command with administrator rights.
- Check the service manager's own logs (` + "`journalctl -u ssh-honeypotd`" + ` on systemd).`,
	}

	issues = map[Id]*Issue{
		bindFailedIssue.Id():           bindFailedIssue,
		privilegedPortIssue.Id():       privilegedPortIssue,
		hostKeyFailedIssue.Id():        hostKeyFailedIssue,
		pidFileFailedIssue.Id():        pidFileFailedIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		privilegeDropFailedIssue.Id():  privilegeDropFailedIssue,
		serviceControlFailedIssue.Id(): serviceControlFailedIssue,
	}
)

func Values() []*Issue {
	return slices.Collect(maps.Values(issues))
}

func Get(id Id) *Issue {
	return issues[id]
}
