package entities

import (
	"strings"

	domainerrors "keyguard.backend/internal/domain/errors"
)

// Permission is a bitmask of key scopes.
type Permission uint16

const (
	PermissionRead   Permission = 1 << 0
	PermissionWrite  Permission = 1 << 1
	PermissionDelete Permission = 1 << 2
	PermissionAdmin  Permission = 1 << 3

	// PermissionAll is every defined bit ORed together.
	PermissionAll = PermissionRead | PermissionWrite | PermissionDelete | PermissionAdmin

	// PermissionNone is the rendering of an empty mask.
	PermissionNone = "NONE"

	permissionSeparator = "|"
)

var permissionNames = []struct {
	bit  Permission
	name string
}{
	{PermissionRead, "READ"},
	{PermissionWrite, "WRITE"},
	{PermissionDelete, "DELETE"},
	{PermissionAdmin, "ADMIN"},
}

// IsValid reports whether the mask has no bits outside PermissionAll.
// Zero is a valid mask: a key with no permissions.
func (p Permission) IsValid() bool {
	return p&^PermissionAll == 0
}

// IsValidRequest reports whether p may be asked for in a permission check:
// at least one bit, none undefined.
func (p Permission) IsValidRequest() bool {
	return p != 0 && p.IsValid()
}

// Has reports whether every bit of required is set in p.
// It does not validate required; use Require for caller-supplied masks.
func (p Permission) Has(required Permission) bool {
	return p&required == required
}

// Require checks a caller-supplied permission request against p.
// A request of zero, or one with undefined bits, is invalid input rather
// than a trivially satisfied check.
func (p Permission) Require(required Permission) error {
	if !required.IsValidRequest() {
		return domainerrors.ErrInvalidPermissions
	}
	if !p.Has(required) {
		return domainerrors.ErrInsufficientPermissions
	}
	return nil
}

// Names lists the scope names set in p, in bit order.
func (p Permission) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

// String renders p as "READ|WRITE", or "NONE" when empty.
func (p Permission) String() string {
	names := p.Names()
	if len(names) == 0 {
		return PermissionNone
	}
	return strings.Join(names, permissionSeparator)
}

// ParsePermissions is the inverse of Permission.Names. Matching is
// case-insensitive; "NONE" and an empty list both yield zero.
func ParsePermissions(names []string) (Permission, error) {
	var mask Permission
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" || name == PermissionNone {
			continue
		}
		found := false
		for _, pn := range permissionNames {
			if pn.name == name {
				mask |= pn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, domainerrors.ErrInvalidPermissions
		}
	}
	return mask, nil
}

// ParsePermissionString accepts the String form, e.g. "READ|WRITE".
func ParsePermissionString(s string) (Permission, error) {
	return ParsePermissions(strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	}))
}
