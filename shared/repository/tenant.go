package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

// TenantRepository adds the global tenant lookups. These are the only queries
// that run without a tenant scope.
type TenantRepository struct {
	*Repository[models.Tenant, *models.Tenant]
}

func NewTenantRepository(db *gorm.DB, opts Options) *TenantRepository {
	return &TenantRepository{New[models.Tenant](db, opts)}
}

func (r *TenantRepository) WithTx(tx *gorm.DB) *TenantRepository {
	return &TenantRepository{r.Repository.WithTx(tx)}
}

// Register inserts a new tenant. A tenant is its own scope, so the scope
// passed to Create is the tenant's logical id.
func (r *TenantRepository) Register(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	id := t.LogicalID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return r.Create(ctx, id, t)
}

// Get returns the active tenant id.
func (r *TenantRepository) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.GetByID(ctx, id, id)
}

// GetBySlug returns the active tenant with the given routing slug.
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return r.lookup(ctx, "slug = ?", strings.ToLower(strings.TrimSpace(slug)))
}

// GetBySubdomain returns the active tenant served on subdomain.
func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return r.lookup(ctx, "subdomain = ?", strings.ToLower(strings.TrimSpace(subdomain)))
}

func (r *TenantRepository) lookup(ctx context.Context, query string, arg string) (*models.Tenant, error) {
	if arg == "" {
		return nil, ErrNotFound
	}
	var t models.Tenant
	if err := r.conn(ctx).Where(models.ActiveFilter()).Where(query, arg).Take(&t).Error; err != nil {
		return nil, translateError(r.table, err)
	}
	return &t, nil
}

// ListAll returns a page of active tenants, newest first.
func (r *TenantRepository) ListAll(ctx context.Context, page Page) ([]*models.Tenant, error) {
	return r.Find(r.conn(ctx).Model(&models.Tenant{}).Where(models.ActiveFilter()), page)
}
