package entity

import "time"

// Role is the account role carried in access tokens.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User represents an account row in the `users` table.
// The reference embedding lives in the same row but is only read through
// the embedding store; HasFace is the projection everyone else needs.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         Role      `db:"role" json:"role"`
	Approved     bool      `db:"approved" json:"approved"`
	PasswordHash string    `db:"password_hash" json:"-"`
	HasFace      bool      `db:"has_face" json:"has_face"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MinimalAuthView is the minimal projection required for token claim hydration.
type MinimalAuthView struct {
	ID       int64  `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
	Role     Role   `db:"role" json:"role"`
	HasFace  bool   `db:"has_face" json:"has_face"`
}
