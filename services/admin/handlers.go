package main

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/crud"
	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// ProvisionTenantRequest represents the provision tenant request
type ProvisionTenantRequest struct {
	Name       string  `json:"name" binding:"required"`
	Slug       string  `json:"slug" binding:"required"`
	Subdomain  *string `json:"subdomain"`
	Plan       string  `json:"plan"`
	AdminEmail string  `json:"admin_email" binding:"required,email"`
	AdminName  string  `json:"admin_name"`
}

// UpdateTenantRequest represents the update tenant request
type UpdateTenantRequest struct {
	Name      *string `json:"name"`
	Slug      *string `json:"slug"`
	Subdomain *string `json:"subdomain"`
	Plan      *string `json:"plan"`
}

// CreateUserRequest represents the create user request
type CreateUserRequest struct {
	Email       string          `json:"email" binding:"required,email"`
	DisplayName string          `json:"display_name"`
	Role        models.UserRole `json:"role"`
	ExternalID  string          `json:"external_id"`
}

// UpdateUserRequest represents the update user request
type UpdateUserRequest struct {
	Email       *string          `json:"email" binding:"omitempty,email"`
	DisplayName *string          `json:"display_name"`
	Role        *models.UserRole `json:"role"`
	ExternalID  *string          `json:"external_id"`
}

// OrganizationRequest is used for both create and update
type OrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// GrantPermissionRequest represents the grant permission request
type GrantPermissionRequest struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	Resource string    `json:"resource" binding:"required"`
	Action   string    `json:"action" binding:"required"`
}

// RecordUsageRequest represents one usage sample
type RecordUsageRequest struct {
	UserID      uuid.UUID  `json:"user_id" binding:"required"`
	Metric      string     `json:"metric" binding:"required"`
	Quantity    int64      `json:"quantity" binding:"gte=0"`
	PeriodStart *time.Time `json:"period_start"`
}

var errInvalidRole = errors.New("role must be one of admin, analyst, viewer")

// handleProvisionTenant creates a tenant and its first admin (operators only)
func handleProvisionTenant(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProvisionTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		tenant, admin, err := svc.Provision(c.Request.Context(), ProvisionInput{
			Name:       req.Name,
			Slug:       req.Slug,
			Subdomain:  req.Subdomain,
			Plan:       req.Plan,
			AdminEmail: req.AdminEmail,
			AdminName:  req.AdminName,
		})
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.CreatedResponse(c, "Tenant provisioned successfully", gin.H{
			"tenant": tenant,
			"admin":  admin,
		})
	}
}

// handleListTenants lists every tenant of the platform (operators only)
func handleListTenants(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := crud.BindPage(c)
		if !ok {
			return
		}
		tenants, err := svc.List(c.Request.Context(), page)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		crud.Respond(c, svc.generic.Options(), page, tenants)
	}
}

func tenantParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid tenant id")
		return uuid.Nil, false
	}
	return id, true
}

// handleGetTenant returns one tenant
func handleGetTenant(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		tenant, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

// handleUpdateTenant updates a tenant
func handleUpdateTenant(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		var req UpdateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		changes := crud.Changes{}
		crud.Set(changes, "name", req.Name)
		crud.Set(changes, "plan", req.Plan)
		if req.Slug != nil {
			changes["slug"] = strings.ToLower(strings.TrimSpace(*req.Slug))
		}
		if req.Subdomain != nil {
			changes["subdomain"] = lower(req.Subdomain)
		}

		tenant, err := svc.Update(c.Request.Context(), id, changes)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

// handleDeleteTenant soft-deletes a tenant
func handleDeleteTenant(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		deleted, err := svc.Delete(c.Request.Context(), id)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		if !deleted {
			utils.NotFoundResponse(c, "Tenant not found")
			return
		}
		utils.OKResponse(c, "Tenant deleted successfully", nil)
	}
}

// handleRestoreTenant reverses a tenant soft delete
func handleRestoreTenant(svc *TenantService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		tenant, err := svc.Restore(c.Request.Context(), id)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "Tenant restored successfully", tenant)
	}
}

// handleSetTenantActive suspends or reactivates a tenant
func handleSetTenantActive(svc *TenantService, active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		tenant, err := svc.SetActive(c.Request.Context(), id, active)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		msg := "Tenant suspended"
		if active {
			msg = "Tenant activated"
		}
		utils.OKResponse(c, msg, tenant)
	}
}

func decodeUser(c *gin.Context) (*models.User, error) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("Invalid request format")
	}
	if req.Role == "" {
		req.Role = models.RoleViewer
	}
	if !req.Role.Valid() {
		return nil, errInvalidRole
	}
	return &models.User{
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		DisplayName: req.DisplayName,
		Role:        req.Role,
		ExternalID:  req.ExternalID,
	}, nil
}

func patchUser(c *gin.Context) (map[string]any, error) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("Invalid request format")
	}
	if req.Role != nil && !req.Role.Valid() {
		return nil, errInvalidRole
	}
	changes := crud.Changes{}
	if req.Email != nil {
		changes["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	crud.Set(changes, "display_name", req.DisplayName)
	crud.Set(changes, "role", req.Role)
	crud.Set(changes, "external_id", req.ExternalID)
	return changes, nil
}

func decodeOrganization(c *gin.Context) (*models.Organization, error) {
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("Invalid request format")
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, errors.New("name is required")
	}
	org := &models.Organization{Name: strings.TrimSpace(*req.Name)}
	if req.Description != nil {
		org.Description = *req.Description
	}
	return org, nil
}

func patchOrganization(c *gin.Context) (map[string]any, error) {
	var req OrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("Invalid request format")
	}
	changes := crud.Changes{}
	crud.Set(changes, "name", req.Name)
	crud.Set(changes, "description", req.Description)
	return changes, nil
}

// handleGetUserByEmail looks a user up by email
func handleGetUserByEmail(svc *UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		email := c.Query("email")
		if email == "" {
			utils.BadRequestResponse(c, "email is required")
			return
		}
		user, err := svc.GetByEmail(c.Request.Context(), tenantRef, email)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "", user)
	}
}

// handleListUsersByRole lists the users holding :role
func handleListUsersByRole(svc *UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		role := models.UserRole(c.Param("role"))
		if !role.Valid() {
			utils.BadRequestResponse(c, errInvalidRole.Error())
			return
		}
		page, ok := crud.BindPage(c)
		if !ok {
			return
		}
		users, err := svc.ListByRole(c.Request.Context(), tenantRef, role, page)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		crud.Respond(c, svc.Options(), page, users)
	}
}

// handleRecordLogin stamps the last sign-in time of a user
func handleRecordLogin(svc *UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, id, ok := crud.Scope(c, true)
		if !ok {
			return
		}
		user, err := svc.RecordLogin(c.Request.Context(), tenantRef, id, time.Now())
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "Login recorded", user)
	}
}

// handleListUserPermissions lists the permissions of a user
func handleListUserPermissions(svc *PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, id, ok := crud.Scope(c, true)
		if !ok {
			return
		}
		page, ok := crud.BindPage(c)
		if !ok {
			return
		}
		perms, err := svc.ListForUser(c.Request.Context(), tenantRef, id, page)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		crud.Respond(c, svc.Options(), page, perms)
	}
}

// handleGrantPermission grants a permission to a user
func handleGrantPermission(svc *PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		var req GrantPermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		perm, err := svc.Grant(c.Request.Context(), tenantRef, &models.Permission{
			UserRef:  req.UserID,
			Resource: req.Resource,
			Action:   req.Action,
		})
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.CreatedResponse(c, "Permission granted", perm)
	}
}

// handleCheckPermission answers whether ?user_id= may ?action= on ?resource=
func handleCheckPermission(svc *PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		userRef, err := uuid.Parse(c.Query("user_id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid user_id")
			return
		}
		resource, action := c.Query("resource"), c.Query("action")
		if resource == "" || action == "" {
			utils.BadRequestResponse(c, "resource and action are required")
			return
		}
		allowed, err := svc.Allowed(c.Request.Context(), tenantRef, userRef, resource, action)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "", gin.H{"allowed": allowed})
	}
}

// handleRecordUsage stores a usage sample
func handleRecordUsage(svc *UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		var req RecordUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		start := time.Now().UTC()
		if req.PeriodStart != nil {
			start = req.PeriodStart.UTC()
		}
		stat, err := svc.Record(c.Request.Context(), tenantRef, &models.UsageStat{
			UserRef:     req.UserID,
			Metric:      req.Metric,
			Quantity:    req.Quantity,
			PeriodStart: start.Truncate(time.Microsecond),
		})
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.CreatedResponse(c, "Usage recorded", stat)
	}
}

// handleUsageSummary totals ?metric= since ?since= (RFC 3339), optionally for ?user_id=
func handleUsageSummary(svc *UsageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantRef, _, ok := crud.Scope(c, false)
		if !ok {
			return
		}
		metric := c.Query("metric")
		if metric == "" {
			utils.BadRequestResponse(c, "metric is required")
			return
		}
		var since time.Time
		if raw := c.Query("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				utils.BadRequestResponse(c, "since must be an RFC 3339 time")
				return
			}
			since = t.UTC()
		}
		var userRef *uuid.UUID
		if raw := c.Query("user_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				utils.BadRequestResponse(c, "Invalid user_id")
				return
			}
			userRef = &id
		}
		total, err := svc.Total(c.Request.Context(), tenantRef, userRef, metric, since)
		if err != nil {
			utils.ErrorFromRepository(c, err)
			return
		}
		utils.OKResponse(c, "", gin.H{"metric": metric, "total": total})
	}
}

// selfOrAdmin lets a user act on its own :id; admins may act on anyone.
func selfOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.Role(c) == models.RoleAdmin {
			c.Next()
			return
		}
		if uid := middleware.UserID(c); uid == "" || uid != c.Param("id") {
			utils.ForbiddenResponse(c, "Access denied to this user")
			c.Abort()
			return
		}
		c.Next()
	}
}

// adminOnly guards write routes.
func adminOnly(auth *middleware.TenantAuth) gin.HandlerFunc {
	return auth.RequireRole(models.RoleAdmin)
}
