package domain

import (
	"fmt"
	"strings"
)

// Permission is a set of membership permission bits.
type Permission uint8

const (
	PermWrite Permission = 1 << iota
	PermInvite
	PermManageRoles
	PermDeleteMessages
	PermManageChannel

	PermNone Permission = 0
	PermAll             = PermWrite | PermInvite | PermManageRoles | PermDeleteMessages | PermManageChannel
)

// DefaultMemberPermissions is granted to members added without explicit bits.
const DefaultMemberPermissions = PermWrite

var permissionNames = []struct {
	flag Permission
	name string
}{
	{PermWrite, "write"},
	{PermInvite, "invite"},
	{PermManageRoles, "manage_roles"},
	{PermDeleteMessages, "delete_messages"},
	{PermManageChannel, "manage_channel"},
}

// Has reports whether every bit of flag is set.
func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// With returns p with flag set.
func (p Permission) With(flag Permission) Permission {
	return p | flag
}

// Without returns p with flag cleared.
func (p Permission) Without(flag Permission) Permission {
	return p &^ flag
}

// Valid reports whether p only carries known bits.
func (p Permission) Valid() bool {
	return p&^PermAll == 0
}

// Names lists the set bits in declaration order.
func (p Permission) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if p.Has(pn.flag) {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Permission) String() string {
	if p == PermNone {
		return "none"
	}
	return strings.Join(p.Names(), "|")
}

// ParsePermissions builds a set from bit names such as "write" or "invite".
func ParsePermissions(names []string) (Permission, error) {
	var p Permission
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		found := false
		for _, pn := range permissionNames {
			if pn.name == name {
				p |= pn.flag
				found = true
				break
			}
		}
		if !found {
			return PermNone, fmt.Errorf("%w: unknown permission %q", ErrValidation, raw)
		}
	}
	return p, nil
}
