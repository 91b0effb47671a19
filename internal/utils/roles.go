package utils

import "strings"

type Role string

const (
	RoleMember     Role = "member"
	RoleLeader     Role = "leader"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRank = map[Role]int{
	RoleMember:     1,
	RoleLeader:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// ParseRole accepts a role name in any case; ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roleRank[r]
	return r, ok
}

// AtLeast reports whether r ranks at or above min. Unknown roles rank lowest.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}
