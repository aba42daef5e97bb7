package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

type OrganizationRepository struct {
	*Repository[models.Organization, *models.Organization]
}

func NewOrganizationRepository(db *gorm.DB, opts Options) *OrganizationRepository {
	return &OrganizationRepository{New[models.Organization](db, opts)}
}

func (r *OrganizationRepository) WithTx(tx *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{r.Repository.WithTx(tx)}
}

// GetByName returns the active organization of tenantRef named name.
func (r *OrganizationRepository) GetByName(ctx context.Context, tenantRef uuid.UUID, name string) (*models.Organization, error) {
	return r.First(ctx, tenantRef, "name = ?", name)
}

type PermissionRepository struct {
	*Repository[models.Permission, *models.Permission]
}

func NewPermissionRepository(db *gorm.DB, opts Options) *PermissionRepository {
	return &PermissionRepository{New[models.Permission](db, opts)}
}

func (r *PermissionRepository) WithTx(tx *gorm.DB) *PermissionRepository {
	return &PermissionRepository{r.Repository.WithTx(tx)}
}

// ListForUser returns a page of the active grants of userRef.
func (r *PermissionRepository) ListForUser(ctx context.Context, tenantRef, userRef uuid.UUID, page Page) ([]*models.Permission, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	return r.Find(q.Where("user_ref = ?", userRef), page)
}

// Lookup returns the active grant matching user, resource and action.
func (r *PermissionRepository) Lookup(ctx context.Context, tenantRef, userRef uuid.UUID, resource, action string) (*models.Permission, error) {
	return r.First(ctx, tenantRef, "user_ref = ? AND resource = ? AND action = ?", userRef, resource, action)
}
