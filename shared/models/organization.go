package models

import "github.com/google/uuid"

// Organization groups users and simulation assets inside a tenant.
type Organization struct {
	ScopedBase
	Name        string `json:"name" gorm:"type:varchar(255);not null"`
	Description string `json:"description" gorm:"type:text"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Permission grants one action on one resource to a user.
type Permission struct {
	ScopedBase
	UserRef  uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	Resource string    `json:"resource" gorm:"type:varchar(100);not null"`
	Action   string    `json:"action" gorm:"type:varchar(50);not null"`
}

func (Permission) TableName() string {
	return "permissions"
}
