// Package permission defines the fixed set of capabilities an account can hold
// and the bitmask arithmetic used to grant and test them.
//
// A user's permissions are stored as a single integer (the "flags" column).
// Each capability owns exactly one bit, so a mask is simply the bitwise OR of
// everything the user has been granted:
//
//	mask := permission.Grant(permission.Default, permission.ApproveQuotes)
//	permission.Has(mask, permission.ApproveQuotes) // true
//
// WHY TYPED CONSTANTS?
// Routes declare what they need with these constants, never with strings.
// A misspelled permission is therefore a compile error instead of a route that
// silently always denies (or always allows).
package permission

import (
	"fmt"
	"slices"
	"strings"
)

// Permission is a single capability bit.
type Permission uint32

// The bit order is persisted in the users table; append new permissions at
// the end and never reorder.
const (
	PostQuotes Permission = 1 << iota
	EditQuotes
	DeleteQuotes
	ListUsers
	ApproveQuotes
	SetFlags
	EditUsers
	CanVote
)

var all = []Permission{
	PostQuotes,
	EditQuotes,
	DeleteQuotes,
	ListUsers,
	ApproveQuotes,
	SetFlags,
	EditUsers,
	CanVote,
}

var names = map[Permission]string{
	PostQuotes:    "post_quotes",
	EditQuotes:    "edit_quotes",
	DeleteQuotes:  "delete_quotes",
	ListUsers:     "list_users",
	ApproveQuotes: "approve_quotes",
	SetFlags:      "set_flags",
	EditUsers:     "edit_users",
	CanVote:       "can_vote",
}

// List returns every known permission in bit order.
func List() []Permission {
	return slices.Clone(all)
}

// String returns the snake_case name used in forms, logs and templates.
func (p Permission) String() string {
	if n, ok := names[p]; ok {
		return n
	}
	return fmt.Sprintf("permission(%d)", uint32(p))
}

// Parse resolves a permission by name. Used where the name arrives from a
// template or a form field rather than from Go code.
func Parse(name string) (Permission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range names {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("permission: unknown permission %q", name)
}

// Mask is the bitwise OR of granted permissions.
type Mask uint32

const (
	// None grants nothing.
	None Mask = 0

	// Default is what a new account receives. Registration always assigns
	// this value; client-supplied flags are never trusted.
	Default = Mask(PostQuotes | CanVote)

	known = Mask(PostQuotes | EditQuotes | DeleteQuotes | ListUsers |
		ApproveQuotes | SetFlags | EditUsers | CanVote)
)

// Full returns a mask holding every known permission.
func Full() Mask {
	return known
}

// Of combines permissions into a mask.
func Of(ps ...Permission) Mask {
	var m Mask
	for _, p := range ps {
		m = Grant(m, p)
	}
	return m
}

// Grant sets the bit for p.
func Grant(m Mask, p Permission) Mask {
	return m | Mask(p)
}

// Revoke clears the bit for p.
func Revoke(m Mask, p Permission) Mask {
	return m &^ Mask(p)
}

// Has reports whether the bit for p is set. The zero Permission is never held.
func Has(m Mask, p Permission) bool {
	return p != 0 && m&Mask(p) == Mask(p)
}

// HasAll reports whether every requested permission is set in m.
//
// An empty request is a misconfigured route, not "nothing required", so it
// evaluates to false.
func HasAll(m Mask, ps ...Permission) bool {
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if !Has(m, p) {
			return false
		}
	}
	return true
}

// Has is the method form of Has, handy in templates.
func (m Mask) Has(p Permission) bool {
	return Has(m, p)
}

// Valid reports whether m only uses known bits.
func (m Mask) Valid() bool {
	return m&^known == 0
}

// Permissions expands m into its individual permissions, in bit order.
func (m Mask) Permissions() []Permission {
	var out []Permission
	for _, p := range all {
		if Has(m, p) {
			out = append(out, p)
		}
	}
	return out
}

// String renders the mask as "post_quotes|can_vote".
func (m Mask) String() string {
	ps := m.Permissions()
	if len(ps) == 0 {
		return "none"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "|")
}

// Requirement is what a route demands of the caller's session.
//
// It is either the logged_in pseudo-permission (any authenticated session
// suffices) or a set of permissions that must all be held. The zero value
// requires nothing and is therefore treated as a misconfiguration: it is
// never satisfied.
type Requirement struct {
	loggedIn bool
	perms    []Permission
}

// LoggedIn requires only an authenticated, fresh session.
func LoggedIn() Requirement {
	return Requirement{loggedIn: true}
}

// All requires every listed permission.
func All(ps ...Permission) Requirement {
	return Requirement{perms: slices.Clone(ps)}
}

// AnyUser reports whether this is the logged_in pseudo-permission.
func (r Requirement) AnyUser() bool {
	return r.loggedIn
}

// Permissions returns the required permissions (empty for LoggedIn).
func (r Requirement) Permissions() []Permission {
	return slices.Clone(r.perms)
}

// SatisfiedBy reports whether a session holding m meets the requirement.
// Session freshness is the caller's concern.
func (r Requirement) SatisfiedBy(m Mask) bool {
	if r.loggedIn {
		return true
	}
	return HasAll(m, r.perms...)
}

func (r Requirement) String() string {
	if r.loggedIn {
		return "logged_in"
	}
	if len(r.perms) == 0 {
		return "misconfigured"
	}
	return Of(r.perms...).String()
}
