// SPDX-License-Identifier: MPL-2.0

package daemon

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

var (
	// ErrNoUnprivilegedAccount is returned when none of the fallback accounts exist.
	ErrNoUnprivilegedAccount = errors.New("no unprivileged account found")
	// ErrPrivilegeDrop is returned when switching identity fails.
	ErrPrivilegeDrop = errors.New("privilege drop failed")

	// fallbackUsers are tried in order when no user is configured.
	fallbackUsers = []string{"nobody", "daemon"}

	lookupUser  = user.Lookup
	lookupGroup = user.LookupGroup
)

// Credentials is the identity the daemon switches to.
type Credentials struct {
	User  string
	Group string
	UID   int
	GID   int
}

// ResolveCredentials finds the account to run as. An empty userName tries
// nobody, then daemon. An empty groupName selects the user's primary group.
func ResolveCredentials(userName, groupName string) (*Credentials, error) {
	u, err := resolveUser(userName)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s has non-numeric uid %q", ErrPrivilegeDrop, u.Username, u.Uid)
	}

	gidStr, groupLabel := u.Gid, groupName
	if groupName != "" {
		g, err := lookupGroup(groupName)
		if err != nil {
			return nil, fmt.Errorf("%w: group %s: %w", ErrPrivilegeDrop, groupName, err)
		}
		gidStr = g.Gid
	} else {
		groupLabel = u.Gid
		if g, err := user.LookupGroupId(u.Gid); err == nil {
			groupLabel = g.Name
		}
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric gid %q", ErrPrivilegeDrop, gidStr)
	}

	return &Credentials{User: u.Username, Group: groupLabel, UID: uid, GID: gid}, nil
}

func resolveUser(name string) (*user.User, error) {
	if name != "" {
		u, err := lookupUser(name)
		if err != nil {
			return nil, fmt.Errorf("%w: user %s: %w", ErrPrivilegeDrop, name, err)
		}
		return u, nil
	}
	for _, candidate := range fallbackUsers {
		if u, err := lookupUser(candidate); err == nil {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w (tried %v)", ErrNoUnprivilegedAccount, fallbackUsers)
}

// DropPrivileges switches to the resolved account when running as root and
// returns the new identity. It returns nil without error when the process is
// already unprivileged.
func DropPrivileges(userName, groupName string) (*Credentials, error) {
	if !isRoot() {
		return nil, nil
	}
	creds, err := ResolveCredentials(userName, groupName)
	if err != nil {
		return nil, err
	}
	if err := setIdentity(creds); err != nil {
		return nil, err
	}
	return creds, nil
}
