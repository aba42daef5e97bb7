package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

type SimulationModelRepository struct {
	*Repository[models.SimulationModel, *models.SimulationModel]
}

func NewSimulationModelRepository(db *gorm.DB, opts Options) *SimulationModelRepository {
	return &SimulationModelRepository{New[models.SimulationModel](db, opts)}
}

func (r *SimulationModelRepository) WithTx(tx *gorm.DB) *SimulationModelRepository {
	return &SimulationModelRepository{r.Repository.WithTx(tx)}
}

// GetByNameVersion returns the active model registered as name at version.
func (r *SimulationModelRepository) GetByNameVersion(ctx context.Context, tenantRef uuid.UUID, name, version string) (*models.SimulationModel, error) {
	return r.First(ctx, tenantRef, "name = ? AND version = ?", name, version)
}

type ScenarioRepository struct {
	*Repository[models.Scenario, *models.Scenario]
}

func NewScenarioRepository(db *gorm.DB, opts Options) *ScenarioRepository {
	return &ScenarioRepository{New[models.Scenario](db, opts)}
}

func (r *ScenarioRepository) WithTx(tx *gorm.DB) *ScenarioRepository {
	return &ScenarioRepository{r.Repository.WithTx(tx)}
}

// ListByModel returns a page of the active scenarios built on modelRef.
func (r *ScenarioRepository) ListByModel(ctx context.Context, tenantRef, modelRef uuid.UUID, page Page) ([]*models.Scenario, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	return r.Find(q.Where("model_ref = ?", modelRef), page)
}

type AnalysisRepository struct {
	*Repository[models.Analysis, *models.Analysis]
}

func NewAnalysisRepository(db *gorm.DB, opts Options) *AnalysisRepository {
	return &AnalysisRepository{New[models.Analysis](db, opts)}
}

func (r *AnalysisRepository) WithTx(tx *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{r.Repository.WithTx(tx)}
}

// ListByScenario returns a page of the active analyses of scenarioRef.
func (r *AnalysisRepository) ListByScenario(ctx context.Context, tenantRef, scenarioRef uuid.UUID, page Page) ([]*models.Analysis, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	return r.Find(q.Where("scenario_ref = ?", scenarioRef), page)
}

type UsageStatRepository struct {
	*Repository[models.UsageStat, *models.UsageStat]
}

func NewUsageStatRepository(db *gorm.DB, opts Options) *UsageStatRepository {
	return &UsageStatRepository{New[models.UsageStat](db, opts)}
}

func (r *UsageStatRepository) WithTx(tx *gorm.DB) *UsageStatRepository {
	return &UsageStatRepository{r.Repository.WithTx(tx)}
}

// SumByMetric totals the active quantities of metric recorded for tenantRef
// since the given time. A nil userRef sums across all users.
func (r *UsageStatRepository) SumByMetric(ctx context.Context, tenantRef uuid.UUID, userRef *uuid.UUID, metric string, since time.Time) (int64, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return 0, err
	}
	q = q.Where("metric = ? AND period_start >= ?", metric, since.UTC())
	if userRef != nil {
		q = q.Where("user_ref = ?", *userRef)
	}
	var total int64
	if err := q.Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error; err != nil {
		return 0, translateError(r.table, err)
	}
	return total, nil
}
