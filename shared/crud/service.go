package crud

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
)

// Check validates an entity inside the write transaction: before Create
// inserts it and after Update applies the changes. An error aborts the
// transaction.
type Check[PT any] func(ctx context.Context, tx *gorm.DB, tenantRef uuid.UUID, entity PT) error

// Service exposes the generic operations of one entity type under a tenant.
type Service[T any, PT repository.EntityPtr[T]] struct {
	runner *Runner
	repo   *repository.Repository[T, PT]
	check  Check[PT]
}

// NewService returns the service for repo.
func NewService[T any, PT repository.EntityPtr[T]](runner *Runner, repo *repository.Repository[T, PT]) *Service[T, PT] {
	return &Service[T, PT]{runner: runner, repo: repo}
}

// WithCheck sets the check run on every create and update.
func (s *Service[T, PT]) WithCheck(check Check[PT]) *Service[T, PT] {
	s.check = check
	return s
}

func (s *Service[T, PT]) validate(ctx context.Context, tx *gorm.DB, tenantRef uuid.UUID, entity PT) error {
	if s.check == nil {
		return nil
	}
	return s.check(ctx, tx, tenantRef, entity)
}

// Repository returns the repository bound to the root session.
func (s *Service[T, PT]) Repository() *repository.Repository[T, PT] {
	return s.repo
}

// Options returns the pagination settings.
func (s *Service[T, PT]) Options() repository.Options {
	return s.repo.Options()
}

func (s *Service[T, PT]) Get(ctx context.Context, tenantRef, id uuid.UUID) (PT, error) {
	var out PT
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.repo.WithTx(db).GetByID(ctx, tenantRef, id)
		return err
	})
	return out, err
}

func (s *Service[T, PT]) List(ctx context.Context, tenantRef uuid.UUID, page repository.Page) ([]PT, error) {
	var out []PT
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.repo.WithTx(db).List(ctx, tenantRef, page)
		return err
	})
	return out, err
}

func (s *Service[T, PT]) Search(ctx context.Context, tenantRef uuid.UUID, term string, fields []string, page repository.Page) ([]PT, error) {
	var out []PT
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.repo.WithTx(db).Search(ctx, tenantRef, term, fields, page)
		return err
	})
	return out, err
}

func (s *Service[T, PT]) Count(ctx context.Context, tenantRef uuid.UUID) (int64, error) {
	var n int64
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		n, err = s.repo.WithTx(db).Count(ctx, tenantRef)
		return err
	})
	return n, err
}

// Create inserts entity under tenantRef.
func (s *Service[T, PT]) Create(ctx context.Context, tenantRef uuid.UUID, entity PT) (PT, error) {
	var out PT
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		if err := s.validate(ctx, tx, tenantRef, entity); err != nil {
			return nil, err
		}
		created, err := s.repo.WithTx(tx).Create(ctx, tenantRef, entity)
		if err != nil {
			return nil, err
		}
		out = created
		return []events.ChangeEvent{events.Change(created, events.ActionCreated)}, nil
	})
	return out, err
}

// Update applies changes to the active record id of tenantRef.
func (s *Service[T, PT]) Update(ctx context.Context, tenantRef, id uuid.UUID, changes map[string]any) (PT, error) {
	var out PT
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByID(ctx, tenantRef, id)
		if err != nil {
			return nil, err
		}
		updated, err := repo.Update(ctx, existing, changes)
		if err != nil {
			return nil, err
		}
		if err := s.validate(ctx, tx, tenantRef, updated); err != nil {
			return nil, err
		}
		out = updated
		return []events.ChangeEvent{events.Change(updated, events.ActionUpdated)}, nil
	})
	return out, err
}

// Delete soft-deletes the record and reports whether it was visible.
func (s *Service[T, PT]) Delete(ctx context.Context, tenantRef, id uuid.UUID) (bool, error) {
	var deleted bool
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		repo := s.repo.WithTx(tx)
		ok, err := repo.SoftDelete(ctx, tenantRef, id)
		if err != nil || !ok {
			return nil, err
		}
		deleted = true
		gone, err := repo.GetByIDWithDeleted(ctx, tenantRef, id)
		if err != nil {
			return nil, err
		}
		return []events.ChangeEvent{events.Change(gone, events.ActionDeleted)}, nil
	})
	return deleted, err
}

// Restore reverses a soft delete.
func (s *Service[T, PT]) Restore(ctx context.Context, tenantRef, id uuid.UUID) (PT, error) {
	var out PT
	err := s.runner.InTx(ctx, func(tx *gorm.DB) ([]events.ChangeEvent, error) {
		restored, err := s.repo.WithTx(tx).Restore(ctx, tenantRef, id)
		if err != nil {
			return nil, err
		}
		out = restored
		return []events.ChangeEvent{events.Change(restored, events.ActionRestored)}, nil
	})
	return out, err
}
