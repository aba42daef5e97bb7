package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// Context keys set by TenantAuth.
const (
	KeyTenantID = "tenant_id"
	KeyUserID   = "user_id"
	KeyRole     = "role"
)

// Headers accepted in mock mode.
const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderTenantSlug = "X-Tenant-Slug"
	HeaderUserID     = "X-User-ID"
	HeaderRole       = "X-User-Role"
)

var errNoTenant = errors.New("tenant reference required")

// SlugResolver maps a tenant slug to its reference.
type SlugResolver interface {
	BySlug(ctx context.Context, slug string) (uuid.UUID, error)
}

// TenantChecker loads an active tenant by reference.
type TenantChecker interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Claims is the payload of a tenant access token.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TenantAuth establishes the tenant context of a request. It is a
// placeholder for a real identity provider: tokens are HS256 JWTs signed
// with a shared key.
type TenantAuth struct {
	signingKey []byte
	mock       bool
	slugs      SlugResolver
	tenants    TenantChecker
}

// NewTenantAuth creates the middleware. slugs may be nil, in which case
// X-Tenant-Slug is ignored.
func NewTenantAuth(signingKey string, mock bool, slugs SlugResolver) *TenantAuth {
	return &TenantAuth{signingKey: []byte(signingKey), mock: mock, slugs: slugs}
}

// WithTenants returns a copy of a that loads the tenant of every request
// from tenants. Unknown or deleted tenants are rejected with 401 and
// suspended ones with 403. Without it the tenant reference is trusted as
// parsed.
func (a *TenantAuth) WithTenants(tenants TenantChecker) *TenantAuth {
	clone := *a
	clone.tenants = tenants
	return &clone
}

// RequireTenant rejects requests without a valid tenant context with 401.
func (a *TenantAuth) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.claims(c)
		if !ok || !a.bindTenant(c, claims) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireOperator admits platform operators only. No tenant context is
// needed or established.
func (a *TenantAuth) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.claims(c)
		if !ok {
			c.Abort()
			return
		}
		if models.UserRole(claims.Role) != models.RoleOperator {
			utils.ForbiddenResponse(c, "Platform operator role required")
			c.Abort()
			return
		}
		a.bindCaller(c, claims)
		c.Next()
	}
}

// RequireTenantOrOperator admits platform operators, and any other caller
// with a valid tenant context.
func (a *TenantAuth) RequireTenantOrOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.claims(c)
		if !ok {
			c.Abort()
			return
		}
		if models.UserRole(claims.Role) == models.RoleOperator {
			a.bindCaller(c, claims)
			c.Next()
			return
		}
		if !a.bindTenant(c, claims) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// claims authenticates the request, writing the error response on failure.
func (a *TenantAuth) claims(c *gin.Context) (*Claims, bool) {
	claims, err := a.authenticate(c)
	if err == nil {
		return claims, true
	}
	if errors.Is(err, utils.ErrTenantSuspended) {
		utils.ForbiddenResponse(c, err.Error())
	} else {
		utils.UnauthorizedResponse(c, err.Error())
	}
	return nil, false
}

func (a *TenantAuth) bindTenant(c *gin.Context, claims *Claims) bool {
	tenantRef, err := uuid.Parse(claims.TenantID)
	if err != nil || tenantRef == uuid.Nil {
		utils.UnauthorizedResponse(c, errNoTenant.Error())
		return false
	}

	if a.tenants != nil {
		t, err := a.tenants.Get(c.Request.Context(), tenantRef)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			utils.UnauthorizedResponse(c, "unknown tenant")
			return false
		case err != nil:
			utils.ErrorFromRepository(c, err)
			return false
		case !t.IsActive:
			utils.ForbiddenResponse(c, utils.ErrTenantSuspended.Error())
			return false
		}
	}

	c.Set(KeyTenantID, tenantRef)
	ctx := c.Request.Context()
	entry := logging.FromContext(ctx).WithField("tenant_id", tenantRef.String())
	c.Request = c.Request.WithContext(logging.WithContext(ctx, entry))

	a.bindCaller(c, claims)
	return true
}

func (a *TenantAuth) bindCaller(c *gin.Context, claims *Claims) {
	c.Set(KeyUserID, claims.Subject)
	c.Set(KeyRole, models.UserRole(claims.Role))
	if claims.Subject != "" {
		ctx := c.Request.Context()
		entry := logging.FromContext(ctx).WithField("user_id", claims.Subject)
		c.Request = c.Request.WithContext(logging.WithContext(ctx, entry))
	}
}

// RequireRole allows the request only when the caller holds one of roles.
// It must run after RequireTenant.
func (a *TenantAuth) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{
			"success":  false,
			"error":    "Insufficient permissions",
			"required": roles,
			"role":     role,
		})
		c.Abort()
	}
}

// RequireOwnTenant rejects requests whose :id parameter names another tenant.
func (a *TenantAuth) RequireOwnTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := c.Param("id")
		ref, ok := TenantRef(c)
		if !ok {
			utils.UnauthorizedResponse(c, errNoTenant.Error())
			c.Abort()
			return
		}
		if requested != "" && requested != ref.String() {
			utils.ForbiddenResponse(c, "Access denied to this tenant")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *TenantAuth) authenticate(c *gin.Context) (*Claims, error) {
	if token := extractToken(c); token != "" {
		return a.parseToken(token)
	}
	if a.mock {
		return a.mockClaims(c)
	}
	return nil, errors.New("Authorization token required")
}

func (a *TenantAuth) mockClaims(c *gin.Context) (*Claims, error) {
	claims := &Claims{
		TenantID: c.GetHeader(HeaderTenantID),
		Role:     c.GetHeader(HeaderRole),
	}
	claims.Subject = c.GetHeader(HeaderUserID)
	if claims.Role == "" {
		claims.Role = string(models.RoleAdmin)
	}

	if claims.TenantID == "" && a.slugs != nil {
		if slug := c.GetHeader(HeaderTenantSlug); slug != "" {
			ref, err := a.slugs.BySlug(c.Request.Context(), slug)
			if err != nil {
				if errors.Is(err, utils.ErrTenantSuspended) {
					return nil, err
				}
				return nil, fmt.Errorf("unknown tenant %q", slug)
			}
			claims.TenantID = ref.String()
		}
	}
	return claims, nil
}

func (a *TenantAuth) parseToken(tokenString string) (*Claims, error) {
	if len(a.signingKey) == 0 {
		return nil, errors.New("token authentication is not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// IssueToken signs a token for the given tenant, user and role.
func IssueToken(signingKey string, tenantRef uuid.UUID, userID string, role models.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: tenantRef.String(),
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// TenantRef returns the tenant reference established by RequireTenant.
func TenantRef(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(KeyTenantID)
	if !ok {
		return uuid.Nil, false
	}
	ref, ok := v.(uuid.UUID)
	return ref, ok && ref != uuid.Nil
}

// UserID returns the caller's subject, if any.
func UserID(c *gin.Context) string {
	return c.GetString(KeyUserID)
}

// Role returns the caller's role.
func Role(c *gin.Context) models.UserRole {
	v, _ := c.Get(KeyRole)
	role, _ := v.(models.UserRole)
	return role
}

var _ TenantChecker = (*repository.TenantRepository)(nil)
