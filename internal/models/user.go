package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the LMS.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// ParseRole maps a request string to a Role. Empty defaults to student.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "":
		return RoleStudent, true
	case RoleAdmin, RoleInstructor, RoleStudent:
		return Role(s), true
	}
	return "", false
}

// User represents an LMS account.
type User struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"role"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"role"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		BatchID:   u.BatchID,
		CreatedAt: u.CreatedAt,
	}
}
