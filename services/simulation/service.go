package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/crud"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
)

var (
	// ErrUnknownModel is returned when a scenario names a model that is not
	// visible in the tenant.
	ErrUnknownModel = fmt.Errorf("simulation model: %w", repository.ErrNotFound)
	// ErrUnknownScenario is returned when an analysis names a scenario that is
	// not visible in the tenant.
	ErrUnknownScenario = fmt.Errorf("scenario: %w", repository.ErrNotFound)
	// ErrUnknownOrganization is returned when a model or scenario names an
	// organization that is not visible in the tenant.
	ErrUnknownOrganization = fmt.Errorf("organization: %w", repository.ErrNotFound)
)

// inScope reports missing when id is not an active record of tenantRef.
func inScope[T any, PT repository.EntityPtr[T]](ctx context.Context, repo *repository.Repository[T, PT], tenantRef, id uuid.UUID, missing error) error {
	if _, err := repo.GetByID(ctx, tenantRef, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return missing
		}
		return err
	}
	return nil
}

func organizationInScope(ctx context.Context, orgs *repository.OrganizationRepository, tx *gorm.DB, tenantRef uuid.UUID, ref *uuid.UUID) error {
	if ref == nil {
		return nil
	}
	return inScope(ctx, orgs.WithTx(tx).Repository, tenantRef, *ref, ErrUnknownOrganization)
}

type ModelService struct {
	*crud.Service[models.SimulationModel, *models.SimulationModel]
	runner *crud.Runner
	models *repository.SimulationModelRepository
}

// NewModelService returns the model service. Writes check that the model's
// organization belongs to the tenant.
func NewModelService(runner *crud.Runner, repo *repository.SimulationModelRepository, orgs *repository.OrganizationRepository) *ModelService {
	svc := crud.NewService(runner, repo.Repository).WithCheck(
		func(ctx context.Context, tx *gorm.DB, tenantRef uuid.UUID, m *models.SimulationModel) error {
			return organizationInScope(ctx, orgs, tx, tenantRef, m.OrganizationRef)
		})
	return &ModelService{Service: svc, runner: runner, models: repo}
}

func (s *ModelService) GetByNameVersion(ctx context.Context, tenantRef uuid.UUID, name, version string) (*models.SimulationModel, error) {
	var out *models.SimulationModel
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.models.WithTx(db).GetByNameVersion(ctx, tenantRef, name, version)
		return err
	})
	return out, err
}

type ScenarioService struct {
	*crud.Service[models.Scenario, *models.Scenario]
	runner    *crud.Runner
	scenarios *repository.ScenarioRepository
}

// NewScenarioService returns the scenario service. Writes check that the
// scenario's model and organization belong to the tenant.
func NewScenarioService(runner *crud.Runner, scenarios *repository.ScenarioRepository, modelRepo *repository.SimulationModelRepository, orgs *repository.OrganizationRepository) *ScenarioService {
	svc := crud.NewService(runner, scenarios.Repository).WithCheck(
		func(ctx context.Context, tx *gorm.DB, tenantRef uuid.UUID, sc *models.Scenario) error {
			if err := inScope(ctx, modelRepo.WithTx(tx).Repository, tenantRef, sc.ModelRef, ErrUnknownModel); err != nil {
				return err
			}
			return organizationInScope(ctx, orgs, tx, tenantRef, sc.OrganizationRef)
		})
	return &ScenarioService{Service: svc, runner: runner, scenarios: scenarios}
}

func (s *ScenarioService) ListByModel(ctx context.Context, tenantRef, modelRef uuid.UUID, page repository.Page) ([]*models.Scenario, error) {
	var out []*models.Scenario
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.scenarios.WithTx(db).ListByModel(ctx, tenantRef, modelRef, page)
		return err
	})
	return out, err
}

type AnalysisService struct {
	*crud.Service[models.Analysis, *models.Analysis]
	runner   *crud.Runner
	analyses *repository.AnalysisRepository
}

// NewAnalysisService returns the analysis service. Writes check that the
// analysed scenario belongs to the tenant.
func NewAnalysisService(runner *crud.Runner, analyses *repository.AnalysisRepository, scenarios *repository.ScenarioRepository) *AnalysisService {
	svc := crud.NewService(runner, analyses.Repository).WithCheck(
		func(ctx context.Context, tx *gorm.DB, tenantRef uuid.UUID, a *models.Analysis) error {
			return inScope(ctx, scenarios.WithTx(tx).Repository, tenantRef, a.ScenarioRef, ErrUnknownScenario)
		})
	return &AnalysisService{Service: svc, runner: runner, analyses: analyses}
}

func (s *AnalysisService) ListByScenario(ctx context.Context, tenantRef, scenarioRef uuid.UUID, page repository.Page) ([]*models.Analysis, error) {
	var out []*models.Analysis
	err := s.runner.Read(ctx, func(db *gorm.DB) error {
		var err error
		out, err = s.analyses.WithTx(db).ListByScenario(ctx, tenantRef, scenarioRef, page)
		return err
	})
	return out, err
}
