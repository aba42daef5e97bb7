package models

// Tenant is a customer organization of the platform. It is looked up
// globally by id, slug or subdomain.
type Tenant struct {
	TenantBase
	Name      string  `json:"name" gorm:"type:varchar(255);not null"`
	Slug      string  `json:"slug" gorm:"type:varchar(100);not null"`
	Subdomain *string `json:"subdomain,omitempty" gorm:"type:varchar(100)"`
	Plan      string  `json:"plan" gorm:"type:varchar(50);not null;default:'standard'"`
	IsActive  bool    `json:"is_active" gorm:"not null"`
}

// TableName returns the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}
