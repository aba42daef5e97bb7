package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

type UserRepository struct {
	*Repository[models.User, *models.User]
}

func NewUserRepository(db *gorm.DB, opts Options) *UserRepository {
	return &UserRepository{New[models.User](db, opts)}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{r.Repository.WithTx(tx)}
}

// GetByEmail returns the active user of tenantRef with email.
func (r *UserRepository) GetByEmail(ctx context.Context, tenantRef uuid.UUID, email string) (*models.User, error) {
	return r.First(ctx, tenantRef, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// ListByRole returns a page of active users of tenantRef holding role.
func (r *UserRepository) ListByRole(ctx context.Context, tenantRef uuid.UUID, role models.UserRole, page Page) ([]*models.User, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	return r.Find(q.Where("role = ?", role), page)
}

// RecordLogin stores the time of the user's latest sign-in.
func (r *UserRepository) RecordLogin(ctx context.Context, user *models.User, at time.Time) (*models.User, error) {
	return r.Update(ctx, user, map[string]any{"last_login_at": at.UTC()})
}
