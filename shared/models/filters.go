package models

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingTenant is returned when a tenant filter is requested without a
// tenant reference. An unscoped query is a data leak, so it is never built.
var ErrMissingTenant = errors.New("tenant reference is required")

func column(name string) clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: name}
}

// ActiveFilter selects rows that are not soft deleted.
func ActiveFilter() clause.Expression {
	return clause.Eq{Column: column(ColumnIsDeleted), Value: false}
}

// DeletedFilter selects soft-deleted rows only.
func DeletedFilter() clause.Expression {
	return clause.Eq{Column: column(ColumnIsDeleted), Value: true}
}

// TenantFilter selects rows owned by tenantRef. For the tenant type the
// predicate matches the tenant's own logical id.
func TenantFilter(s Scoper, tenantRef uuid.UUID) (clause.Expression, error) {
	if tenantRef == uuid.Nil {
		return nil, ErrMissingTenant
	}
	return clause.Eq{Column: column(s.ScopeColumn()), Value: tenantRef}, nil
}

// ActiveTenantFilter combines TenantFilter and ActiveFilter; it is the default
// query shape.
func ActiveTenantFilter(s Scoper, tenantRef uuid.UUID) (clause.Expression, error) {
	tf, err := TenantFilter(s, tenantRef)
	if err != nil {
		return nil, err
	}
	return clause.And(tf, ActiveFilter()), nil
}

// IDFilter selects one record by logical id.
func IDFilter(id uuid.UUID) clause.Expression {
	return clause.Eq{Column: column(ColumnLogicalID), Value: id}
}

// Active is a GORM scope applying ActiveFilter.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where(ActiveFilter())
}

// ScopedTo returns a GORM scope applying ActiveTenantFilter. A missing tenant
// reference aborts the statement with ErrMissingTenant.
func ScopedTo(s Scoper, tenantRef uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		expr, err := ActiveTenantFilter(s, tenantRef)
		if err != nil {
			_ = db.AddError(err)
			return db
		}
		return db.Where(expr)
	}
}

// NewestFirst orders by the physical sequence key, most recent first.
func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: column(ColumnSequenceID), Desc: true})
}
