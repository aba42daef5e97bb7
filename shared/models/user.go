package models

import "time"

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleAnalyst UserRole = "analyst"
	RoleViewer  UserRole = "viewer"

	// RoleOperator is held by platform operators. It is carried in tokens
	// only; no tenant user can be given it.
	RoleOperator UserRole = "operator"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleViewer:
		return true
	}
	return false
}

// User represents a tenant user record
type User struct {
	ScopedBase
	Email       string     `json:"email" gorm:"type:varchar(255);not null"`
	DisplayName string     `json:"display_name" gorm:"type:varchar(255)"`
	Role        UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'viewer'"`
	ExternalID  string     `json:"external_id,omitempty" gorm:"type:varchar(255)"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
