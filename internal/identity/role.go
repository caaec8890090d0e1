package identity

import "strings"

// Role is the dashboard a user may access.
type Role string

const (
	RoleNone  Role = ""
	RoleUserA Role = "userA"
	RoleUserB Role = "userB"
)

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}

	return string(r)
}

// Roles lists the email addresses assigned to each role.
type Roles struct {
	UserA []string
	UserB []string
}

// DefaultRoles matches the demo accounts.
var DefaultRoles = Roles{
	UserA: []string{"usera@example.com"},
	UserB: []string{"userb@example.com"},
}

// RoleFor derives a role from the email address. Matching ignores case and
// surrounding whitespace. An address listed under both roles is userA.
func RoleFor(email string, roles Roles) Role {
	email = strings.TrimSpace(email)
	if email == "" {
		return RoleNone
	}

	if containsFold(roles.UserA, email) {
		return RoleUserA
	}

	if containsFold(roles.UserB, email) {
		return RoleUserB
	}

	return RoleNone
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}

	return false
}
