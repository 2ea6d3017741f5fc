package model

import "time"

type UserRole string

const (
	UserRoleStudent    UserRole = "student"
	UserRoleMentor     UserRole = "mentor"
	UserRoleUniversity UserRole = "university"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleMentor, UserRoleUniversity:
		return true
	}
	return false
}

type User struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"isActive"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Message string   `json:"message"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
}
