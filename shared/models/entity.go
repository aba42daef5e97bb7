package models

import (
	"time"

	"github.com/google/uuid"
)

// Column names shared by every table.
const (
	ColumnLogicalID  = "logical_id"
	ColumnSequenceID = "sequence_id"
	ColumnTenantRef  = "tenant_ref"
	ColumnCreatedAt  = "created_at"
	ColumnUpdatedAt  = "updated_at"
	ColumnIsDeleted  = "is_deleted"
)

// Base holds the columns every persisted record carries.
//
// SequenceID is the engine-assigned physical key and never leaves the process;
// LogicalID is the identifier used in every external reference.
type Base struct {
	SequenceID int64     `json:"-" gorm:"column:sequence_id;primaryKey;autoIncrement"`
	LogicalID  uuid.UUID `json:"id" gorm:"column:logical_id;type:uuid;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;not null;autoUpdateTime:false"`
	IsDeleted  bool      `json:"is_deleted" gorm:"column:is_deleted;not null;default:false"`
}

// now is truncated to microseconds, the precision of timestamptz.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Record returns the base columns of the entity.
func (b *Base) Record() *Base {
	return b
}

// Stamp prepares a record for its first insert: it assigns a logical id when
// none was supplied and sets both timestamps.
func (b *Base) Stamp() {
	if b.LogicalID == uuid.Nil {
		b.LogicalID = uuid.New()
	}
	ts := now()
	b.CreatedAt = ts
	b.UpdatedAt = ts
	b.IsDeleted = false
}

// Touch moves UpdatedAt forward. The new value is always strictly after the
// previous one, even when the clock has not advanced.
func (b *Base) Touch() time.Time {
	ts := now()
	if !ts.After(b.UpdatedAt) {
		ts = b.UpdatedAt.Add(time.Microsecond)
	}
	b.UpdatedAt = ts
	return ts
}

// MarkDeleted flags the record as soft deleted. Only memory is changed; the
// caller persists it.
func (b *Base) MarkDeleted() {
	b.IsDeleted = true
	b.Touch()
}

// Restore reverses MarkDeleted.
func (b *Base) Restore() {
	b.IsDeleted = false
	b.Touch()
}

// Active reports whether the record is visible to default queries.
func (b *Base) Active() bool {
	return !b.IsDeleted
}

// Scoper tells the filters which column identifies the owning tenant.
type Scoper interface {
	ScopeColumn() string
}

// Entity is implemented by every persisted type through TenantBase or
// ScopedBase.
type Entity interface {
	Scoper
	Record() *Base
	OwnerRef() uuid.UUID
	BindTenant(tenantRef uuid.UUID)
	TableName() string
}

// TenantBase is embedded by the tenant type only. A tenant is its own scope:
// it carries no tenant reference, filters match on logical_id, and binding a
// tenant to a scope assigns that scope as its logical id.
type TenantBase struct {
	Base
}

func (TenantBase) ScopeColumn() string { return ColumnLogicalID }

// OwnerRef returns the tenant's own logical id.
func (b *TenantBase) OwnerRef() uuid.UUID { return b.LogicalID }

// BindTenant sets the tenant's own logical id.
func (b *TenantBase) BindTenant(tenantRef uuid.UUID) { b.LogicalID = tenantRef }

// ScopedBase is embedded by every entity that belongs to a tenant.
type ScopedBase struct {
	Base
	TenantRef uuid.UUID `json:"tenant_id" gorm:"column:tenant_ref;type:uuid;not null"`
}

func (ScopedBase) ScopeColumn() string { return ColumnTenantRef }

// OwnerRef returns the owning tenant.
func (b *ScopedBase) OwnerRef() uuid.UUID { return b.TenantRef }

// BindTenant sets the owning tenant.
func (b *ScopedBase) BindTenant(tenantRef uuid.UUID) { b.TenantRef = tenantRef }
