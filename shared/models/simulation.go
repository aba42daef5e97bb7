package models

import (
	"time"

	"github.com/google/uuid"
)

// SimulationModel is a versioned simulation model registered by a tenant.
type SimulationModel struct {
	ScopedBase
	Name            string     `json:"name" gorm:"type:varchar(255);not null"`
	Version         string     `json:"version" gorm:"type:varchar(50);not null"`
	Description     string     `json:"description" gorm:"type:text"`
	OrganizationRef *uuid.UUID `json:"organization_id,omitempty" gorm:"type:uuid"`
}

func (SimulationModel) TableName() string {
	return "simulation_models"
}

type ScenarioStatus string

const (
	ScenarioDraft    ScenarioStatus = "draft"
	ScenarioReady    ScenarioStatus = "ready"
	ScenarioArchived ScenarioStatus = "archived"
)

// Scenario is a parameter set for a simulation model.
type Scenario struct {
	ScopedBase
	Name            string         `json:"name" gorm:"type:varchar(255);not null"`
	Description     string         `json:"description" gorm:"type:text"`
	ModelRef        uuid.UUID      `json:"model_id" gorm:"type:uuid;not null"`
	OrganizationRef *uuid.UUID     `json:"organization_id,omitempty" gorm:"type:uuid"`
	Parameters      string         `json:"parameters" gorm:"type:text;not null;default:'{}'"`
	Status          ScenarioStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft'"`
}

func (Scenario) TableName() string {
	return "scenarios"
}

type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// Analysis records the outcome of examining a scenario.
type Analysis struct {
	ScopedBase
	ScenarioRef uuid.UUID      `json:"scenario_id" gorm:"type:uuid;not null"`
	Title       string         `json:"title" gorm:"type:varchar(255);not null"`
	Summary     string         `json:"summary" gorm:"type:text"`
	Status      AnalysisStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
}

func (Analysis) TableName() string {
	return "analyses"
}

// UsageStat is one metered quantity for a user in a period.
type UsageStat struct {
	ScopedBase
	UserRef     uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	Metric      string    `json:"metric" gorm:"type:varchar(100);not null"`
	Quantity    int64     `json:"quantity" gorm:"not null;default:0"`
	PeriodStart time.Time `json:"period_start" gorm:"not null"`
}

func (UsageStat) TableName() string {
	return "usage_stats"
}
