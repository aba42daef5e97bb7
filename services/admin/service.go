package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/crud"
	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// ErrUnknownUser is returned when a grant or usage record names a user that
// does not exist in the tenant.
var ErrUnknownUser = fmt.Errorf("user: %w", repository.ErrNotFound)

// ProvisionInput describes a new tenant and its first administrator.
type ProvisionInput struct {
	Name       string
	Slug       string
	Subdomain  *string
	Plan       string
	AdminEmail string
	AdminName  string
}

// TenantService manages tenants. A tenant is its own scope, so every
// tenant-scoped call passes the tenant id as the scope.
type TenantService struct {
	runner  *crud.Runner
	tenants *repository.TenantRepository
	users   *repository.UserRepository
	generic *crud.Service[models.Tenant, *models.Tenant]
	cache   *utils.TenantCache
}

func NewTenantService(runner *crud.Runner, tenants *repository.TenantRepository, users *repository.UserRepository, cache *utils.TenantCache) *TenantService {
	return &TenantService{
		runner:  runner,
		tenants: tenants,
		users:   users,
		generic: crud.NewService(runner, tenants.Repository),
		cache:   cache,
	}
}

// Provision creates a tenant and its first admin user in one transaction.
// Neither row exists if either insert fails.
func (s *TenantService) Provision(ctx context.Context, in ProvisionInput) (*models.Tenant, *models.User, error) {
	tenant := &models.Tenant{
		Name:      strings.TrimSpace(in.Name),
		Slug:      strings.ToLower(strings.TrimSpace(in.Slug)),
		Subdomain: lower(in.Subdomain),
		Plan:      in.Plan,
		IsActive:  true,
	}
	if tenant.Plan == "" {
		tenant.Plan = "standard"
	}
	admin := &models.User{
		Email:       strings.ToLower(strings.TrimSpace(in.AdminEmail)),
		DisplayName: in.AdminName,
		Role:        models.RoleAdmin,
	}

	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		// Fresh copies per attempt so a retried transaction starts clean.
		t, u := *tenant, *admin
		created, err := s.tenants.WithTx(tx).Register(ctx, &t)
		if err != nil {
			return nil, err
		}
		user, err := s.users.WithTx(tx).Create(ctx, created.LogicalID, &u)
		if err != nil {
			return nil, err
		}
		*tenant, *admin = *created, *user
		return []events.ChangeEvent{
			events.Change(created, events.ActionCreated),
			events.Change(user, events.ActionCreated),
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	logging.FromContext(ctx).WithField("tenant_id", tenant.LogicalID).WithField("slug", tenant.Slug).Info("Tenant provisioned")
	return tenant, admin, nil
}

func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.generic.Get(ctx, id, id)
}

// List returns every active tenant of the platform.
func (s *TenantService) List(ctx context.Context, page repository.Page) ([]*models.Tenant, error) {
	var out []*models.Tenant
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.tenants.WithTx(db).ListAll(ctx, page)
		return err
	})
	return out, err
}

func (s *TenantService) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*models.Tenant, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.generic.Update(ctx, id, id, changes)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, before)
	s.cache.Invalidate(ctx, updated)
	return updated, nil
}

// SetActive suspends or reactivates tenant id. A suspended tenant keeps its
// data but every request in its scope is refused.
func (s *TenantService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Tenant, error) {
	return s.Update(ctx, id, map[string]any{"is_active": active})
}

func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	before, err := s.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := s.generic.Delete(ctx, id, id)
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(ctx, before)
	return deleted, nil
}

func (s *TenantService) Restore(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	restored, err := s.generic.Restore(ctx, id, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, restored)
	return restored, nil
}

// UserService adds the user lookups to the generic operations.
type UserService struct {
	*crud.Service[models.User, *models.User]
	runner *crud.Runner
	users  *repository.UserRepository
}

func NewUserService(runner *crud.Runner, users *repository.UserRepository) *UserService {
	return &UserService{
		Service: crud.NewService(runner, users.Repository),
		runner:  runner,
		users:   users,
	}
}

func (s *UserService) GetByEmail(ctx context.Context, tenantRef uuid.UUID, email string) (*models.User, error) {
	var out *models.User
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.users.WithTx(db).GetByEmail(ctx, tenantRef, email)
		return err
	})
	return out, err
}

func (s *UserService) ListByRole(ctx context.Context, tenantRef uuid.UUID, role models.UserRole, page repository.Page) ([]*models.User, error) {
	var out []*models.User
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.users.WithTx(db).ListByRole(ctx, tenantRef, role, page)
		return err
	})
	return out, err
}

// RecordLogin stamps the user's last sign-in time.
func (s *UserService) RecordLogin(ctx context.Context, tenantRef, id uuid.UUID, at time.Time) (*models.User, error) {
	var out *models.User
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		repo := s.users.WithTx(tx)
		user, err := repo.GetByID(ctx, tenantRef, id)
		if err != nil {
			return nil, err
		}
		if out, err = repo.RecordLogin(ctx, user, at); err != nil {
			return nil, err
		}
		return []events.ChangeEvent{events.Change(out, events.ActionUpdated)}, nil
	})
	return out, err
}

// PermissionService grants and checks permissions.
type PermissionService struct {
	*crud.Service[models.Permission, *models.Permission]
	runner      *crud.Runner
	permissions *repository.PermissionRepository
	users       *repository.UserRepository
}

func NewPermissionService(runner *crud.Runner, permissions *repository.PermissionRepository, users *repository.UserRepository) *PermissionService {
	return &PermissionService{
		Service:     crud.NewService(runner, permissions.Repository),
		runner:      runner,
		permissions: permissions,
		users:       users,
	}
}

// Grant gives userRef the right to perform action on resource. Granting a
// permission the user already holds is a conflict.
func (s *PermissionService) Grant(ctx context.Context, tenantRef uuid.UUID, p *models.Permission) (*models.Permission, error) {
	var out *models.Permission
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		if _, err := s.users.WithTx(tx).GetByID(ctx, tenantRef, p.UserRef); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrUnknownUser
			}
			return nil, err
		}
		grant := *p
		created, err := s.permissions.WithTx(tx).Create(ctx, tenantRef, &grant)
		if err != nil {
			return nil, err
		}
		out = created
		return []events.ChangeEvent{events.Change(created, events.ActionCreated)}, nil
	})
	return out, err
}

// Allowed reports whether userRef holds the permission. Grants of a deleted
// user allow nothing.
func (s *PermissionService) Allowed(ctx context.Context, tenantRef, userRef uuid.UUID, resource, action string) (bool, error) {
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		if _, err := s.users.WithTx(db).GetByID(ctx, tenantRef, userRef); err != nil {
			return err
		}
		_, err := s.permissions.WithTx(db).Lookup(ctx, tenantRef, userRef, resource, action)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *PermissionService) ListForUser(ctx context.Context, tenantRef, userRef uuid.UUID, page repository.Page) ([]*models.Permission, error) {
	var out []*models.Permission
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.permissions.WithTx(db).ListForUser(ctx, tenantRef, userRef, page)
		return err
	})
	return out, err
}

// UsageService records and totals metered usage.
type UsageService struct {
	*crud.Service[models.UsageStat, *models.UsageStat]
	runner *crud.Runner
	usage  *repository.UsageStatRepository
	users  *repository.UserRepository
}

func NewUsageService(runner *crud.Runner, usage *repository.UsageStatRepository, users *repository.UserRepository) *UsageService {
	return &UsageService{
		Service: crud.NewService(runner, usage.Repository),
		runner:  runner,
		usage:   usage,
		users:   users,
	}
}

// Record stores one usage sample for a user of the tenant.
func (s *UsageService) Record(ctx context.Context, tenantRef uuid.UUID, stat *models.UsageStat) (*models.UsageStat, error) {
	var out *models.UsageStat
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		if _, err := s.users.WithTx(tx).GetByID(ctx, tenantRef, stat.UserRef); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrUnknownUser
			}
			return nil, err
		}
		sample := *stat
		created, err := s.usage.WithTx(tx).Create(ctx, tenantRef, &sample)
		if err != nil {
			return nil, err
		}
		out = created
		return []events.ChangeEvent{events.Change(created, events.ActionCreated)}, nil
	})
	return out, err
}

// Total sums metric since the given time, optionally for one user.
func (s *UsageService) Total(ctx context.Context, tenantRef uuid.UUID, userRef *uuid.UUID, metric string, since time.Time) (int64, error) {
	var total int64
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		total, err = s.usage.WithTx(db).SumByMetric(ctx, tenantRef, userRef, metric, since)
		return err
	})
	return total, err
}

func lower(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}
