package identity

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r AccountRole) bool {
	switch r {
	case RoleIrrigator, RoleOperator, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into an AccountRole
func ParseRole(roleStr string) (AccountRole, bool) {
	role := AccountRole(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []AccountRole {
	return []AccountRole{
		RoleIrrigator,
		RoleOperator,
		RoleAdmin,
	}
}
