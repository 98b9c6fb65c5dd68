package models

// Role is the role carried by a bearer token.
type Role string

const (
	// RoleOwner is the account that owns events and their guest lists.
	RoleOwner Role = "owner"
	// RoleStaff is a check-in station acting on behalf of an owner.
	RoleStaff Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleStaff
}
