package rbac

// Role names carried in operator tokens. Keep these stable; the external auth system issues them.
const (
	RoleOperator = "operator"
	RoleClinical = "clinical"
	RoleAdmin    = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
