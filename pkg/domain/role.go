package domain

import dErrors "registrar/pkg/domain-errors"

// Role is the coarse authorization role carried by an access token.
// Invariant: the value must be one of the supported roles.
type Role string

const (
	// RoleCitizen may propose changes to their own record.
	RoleCitizen Role = "citizen"
	// RoleAgency may review and resolve pending requests.
	RoleAgency Role = "agency"
)

var validRoles = map[Role]bool{
	RoleCitizen: true,
	RoleAgency:  true,
}

// ParseRole constructs a Role from a token claim.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported role: "+s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// Principal is the authenticated caller as seen by handlers and services.
type Principal struct {
	ID   string
	Role Role
}

// IsZero reports whether no principal has been established.
func (p Principal) IsZero() bool { return p.ID == "" }
