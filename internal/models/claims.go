package models

// Role represents user roles supplied by the identity service.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleDriver Role = "driver"
)

// Claims represents the JWT claims of an authenticated vehicle owner or
// station operator.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleDriver:
		return true
	default:
		return false
	}
}
