package model

import "strings"

// Role is the coarse-grained authorization category of a user.  Exactly
// three values exist; anything else read from a token or a row is treated
// as "no role" by the resolver.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Roles lists every valid role in privilege order (least first).
var Roles = []Role{RoleCustomer, RoleTechnician, RoleAdmin}

// ParseRole normalises s (trim + lower case) and reports whether it names
// one of the three roles.  The provider's own Postgres roles such as
// "authenticated" or "anon" are not application roles and return false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleCustomer, RoleTechnician, RoleAdmin:
		return r, true
	}
	return "", false
}

// Valid reports whether r is one of the three roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string { return string(r) }
