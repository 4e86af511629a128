package models

import "time"

// UserRole controls what a user may do: admins manage everything, authors
// write and send proposals, viewers only read.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleAuthor UserRole = "AUTHOR"
	RoleViewer UserRole = "VIEWER"
)

// User is one row of the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Info projects the user into its public response shape.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}
}
