package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/crud"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// ModelRequest is used for both create and update of simulation models
type ModelRequest struct {
	Name           *string    `json:"name"`
	Version        *string    `json:"version"`
	Description    *string    `json:"description"`
	OrganizationID *uuid.UUID `json:"organization_id"`
}

// CreateScenarioRequest represents the create scenario request
type CreateScenarioRequest struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	ModelID        uuid.UUID       `json:"model_id" binding:"required"`
	OrganizationID *uuid.UUID      `json:"organization_id"`
	Parameters     json.RawMessage `json:"parameters"`
}

// UpdateScenarioRequest represents the update scenario request
type UpdateScenarioRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Parameters  json.RawMessage        `json:"parameters"`
	Status      *models.ScenarioStatus `json:"status"`
}

// CreateAnalysisRequest represents the create analysis request
type CreateAnalysisRequest struct {
	ScenarioID uuid.UUID `json:"scenario_id" binding:"required"`
	Title      string    `json:"title" binding:"required"`
	Summary    string    `json:"summary"`
}

// UpdateAnalysisRequest represents the update analysis request
type UpdateAnalysisRequest struct {
	Title   *string                `json:"title"`
	Summary *string                `json:"summary"`
	Status  *models.AnalysisStatus `json:"status"`
}

var (
	errInvalidFormat     = errors.New("Invalid request format")
	errInvalidParameters = errors.New("parameters must be a JSON object")
	errScenarioStatus    = errors.New("status must be one of draft, ready, archived")
	errAnalysisStatus    = errors.New("status must be one of pending, running, completed, failed")
)

func decodeModel(c *gin.Context) (*models.SimulationModel, error) {
	var req ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errInvalidFormat
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.Version == nil || strings.TrimSpace(*req.Version) == "" {
		return nil, errors.New("name and version are required")
	}
	m := &models.SimulationModel{
		Name:            strings.TrimSpace(*req.Name),
		Version:         strings.TrimSpace(*req.Version),
		OrganizationRef: req.OrganizationID,
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	return m, nil
}

func patchModel(c *gin.Context) (map[string]any, error) {
	var req ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errInvalidFormat
	}
	changes := crud.Changes{}
	crud.Set(changes, "name", req.Name)
	crud.Set(changes, "version", req.Version)
	crud.Set(changes, "description", req.Description)
	if req.OrganizationID != nil {
		changes["organization_ref"] = *req.OrganizationID
	}
	return changes, nil
}

// parameters normalizes a scenario parameter document. An absent document is
// the empty object.
func parameters(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}", nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", errInvalidParameters
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", errInvalidParameters
	}
	return string(out), nil
}

func validScenarioStatus(s models.ScenarioStatus) bool {
	switch s {
	case models.ScenarioDraft, models.ScenarioReady, models.ScenarioArchived:
		return true
	}
	return false
}

func validAnalysisStatus(s models.AnalysisStatus) bool {
	switch s {
	case models.AnalysisPending, models.AnalysisRunning, models.AnalysisCompleted, models.AnalysisFailed:
		return true
	}
	return false
}

func patchScenario(c *gin.Context) (map[string]any, error) {
	var req UpdateScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errInvalidFormat
	}
	if req.Status != nil && !validScenarioStatus(*req.Status) {
		return nil, errScenarioStatus
	}
	changes := crud.Changes{}
	crud.Set(changes, "name", req.Name)
	crud.Set(changes, "description", req.Description)
	crud.Set(changes, "status", req.Status)
	if len(req.Parameters) > 0 {
		params, err := parameters(req.Parameters)
		if err != nil {
			return nil, err
		}
		changes["parameters"] = params
	}
	return changes, nil
}

func patchAnalysis(c *gin.Context) (map[string]any, error) {
	var req UpdateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errInvalidFormat
	}
	if req.Status != nil && !validAnalysisStatus(*req.Status) {
		return nil, errAnalysisStatus
	}
	changes := crud.Changes{}
	crud.Set(changes, "title", req.Title)
	crud.Set(changes, "summary", req.Summary)
	crud.Set(changes, "status", req.Status)
	return changes, nil
}

// handleGetModelByName looks a model up by ?name= and ?version=
func handleGetModelByName(svc *ModelService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		name, version := c.Query("name"), c.Query("version")
		if name == "" || version == "" {
			utils.BadRequestResponse(c, "name and version are required")
			return
		}
		m, err := svc.GetByNameVersion(c.Request.Context(), tenantRef, name, version)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "", m)
	}
}

// handleCreateScenario creates a scenario for an existing model
func handleCreateScenario(svc *ScenarioService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		var req CreateScenarioRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, errInvalidFormat.Error())
			return
		}
		params, err := parameters(req.Parameters)
		if err != nil {
			utils.BadRequestResponse(c, err.Error())
			return
		}
		sc, err := svc.Create(c.Request.Context(), tenantRef, &models.Scenario{
			Name:            strings.TrimSpace(req.Name),
			Description:     req.Description,
			ModelRef:        req.ModelID,
			OrganizationRef: req.OrganizationID,
			Parameters:      params,
			Status:          models.ScenarioDraft,
		})
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.CreatedResponse(c, "Scenario created successfully", sc)
	}
}

// handleListModelScenarios lists the scenarios of model :id
func handleListModelScenarios(svc *ScenarioService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, id, ok := crud.Scope(c, true)
		if !ok {
			return
		}
		page, ok := crud.BindPage(c)
		if !ok {
			return
		}
		items, err := svc.ListByModel(c.Request.Context(), tenantRef, id, page)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		crud.Respond(c, svc.Options(), page, items)
	}
}

// handleCreateAnalysis creates an analysis of an existing scenario
func handleCreateAnalysis(svc *AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		var req CreateAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, errInvalidFormat.Error())
			return
		}
		a, err := svc.Create(c.Request.Context(), tenantRef, &models.Analysis{
			ScenarioRef: req.ScenarioID,
			Title:       strings.TrimSpace(req.Title),
			Summary:     req.Summary,
			Status:      models.AnalysisPending,
		})
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.CreatedResponse(c, "Analysis created successfully", a)
	}
}

// handleListScenarioAnalyses lists the analyses of scenario :id
func handleListScenarioAnalyses(svc *AnalysisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, id, ok := crud.Scope(c, true)
		if !ok {
			return
		}
		page, ok := crud.BindPage(c)
		if !ok {
			return
		}
		items, err := svc.ListByScenario(c.Request.Context(), tenantRef, id, page)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		crud.Respond(c, svc.Options(), page, items)
	}
}
