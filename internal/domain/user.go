package domain

import "time"

// Role controls what a user may do.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleSecretary  Role = "secretary"
	RoleITAdmin    Role = "it_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleSecretary || r == RoleITAdmin
}

// User is a staff member who can sign in.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
