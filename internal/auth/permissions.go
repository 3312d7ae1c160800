package auth

import (
	"strconv"
	"strings"
)

// Permission is a bit field of capabilities stored on each staff member.
// Individual capabilities are powers of two and combine with bitwise OR.
type Permission int64

// Capability bits.
const (
	PermRead Permission = 1 << iota
	PermModify
	PermManager
	PermAdmin
)

const (
	// PermNone carries no capability.
	PermNone Permission = 0

	// PermAll is every known capability. The first registered staff member
	// receives it.
	PermAll = PermRead | PermModify | PermManager | PermAdmin

	// DefaultPermissions is assigned to later self-registrations.
	DefaultPermissions = PermRead
)

var permissionNames = []struct {
	bit  Permission
	name string
}{
	{PermRead, "read"},
	{PermModify, "modify"},
	{PermManager, "manager"},
	{PermAdmin, "admin"},
}

// HasCapability reports whether role carries every bit in capability.
// Callers never compare role values directly.
func HasCapability(role, capability Permission) bool {
	return role&capability == capability
}

// Has is HasCapability with p as the role.
func (p Permission) Has(capability Permission) bool {
	return HasCapability(p, capability)
}

// Valid reports whether p uses only known capability bits.
func (p Permission) Valid() bool {
	return p >= 0 && p&^PermAll == 0
}

// Names lists the capabilities carried by p, lowest bit first.
func (p Permission) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if p.Has(pn.bit) {
			names = append(names, pn.name)
		}
	}
	return names
}

// String renders p as "read|manager", or "none" for zero.
func (p Permission) String() string {
	names := p.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParsePermissions parses the decimal bit field a client supplies when
// changing a role, e.g. "12" for manager|admin.
func ParsePermissions(s string) (Permission, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return PermNone, malformed("permissions must be an integer")
	}
	p := Permission(n)
	if !p.Valid() {
		return PermNone, malformed("permissions %d contains unknown bits", n)
	}
	return p, nil
}
