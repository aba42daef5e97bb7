package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const signingKey = "test-signing-key"

type slugMap map[string]uuid.UUID

func (m slugMap) BySlug(_ context.Context, slug string) (uuid.UUID, error) {
	if slug == "paused" {
		return uuid.Nil, utils.ErrTenantSuspended
	}
	ref, ok := m[slug]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return ref, nil
}

type echo struct {
	TenantID string          `json:"tenant_id"`
	UserID   string          `json:"user_id"`
	Role     models.UserRole `json:"role"`
}

func newRouter(auth *middleware.TenantAuth, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{auth.RequireTenant()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		ref, _ := middleware.TenantRef(c)
		c.JSON(http.StatusOK, echo{TenantID: ref.String(), UserID: middleware.UserID(c), Role: middleware.Role(c)})
	})
	r.GET("/tenants/:id", handlers...)
	r.GET("/whoami", handlers...)
	return r
}

func do(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(c *qt.C, rec *httptest.ResponseRecorder) echo {
	var e echo
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &e), qt.IsNil)
	return e
}

func TestBearerToken(t *testing.T) {
	c := qt.New(t)
	ref := uuid.New()
	token, err := middleware.IssueToken(signingKey, ref, "user-1", models.RoleAnalyst, time.Hour)
	c.Assert(err, qt.IsNil)

	r := newRouter(middleware.NewTenantAuth(signingKey, false, nil))
	rec := do(r, "/whoami", map[string]string{"Authorization": "Bearer " + token})

	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode(c, rec), qt.Equals, echo{TenantID: ref.String(), UserID: "user-1", Role: models.RoleAnalyst})
}

func TestRejectedTokens(t *testing.T) {
	ref := uuid.New()
	wrongKey, _ := middleware.IssueToken("other-key", ref, "u", models.RoleAdmin, time.Hour)
	expired, _ := middleware.IssueToken(signingKey, ref, "u", models.RoleAdmin, -time.Minute)
	noTenant, _ := middleware.IssueToken(signingKey, uuid.Nil, "u", models.RoleAdmin, time.Hour)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{name: "missing", headers: nil},
		{name: "wrong key", headers: map[string]string{"Authorization": "Bearer " + wrongKey}},
		{name: "expired", headers: map[string]string{"Authorization": "Bearer " + expired}},
		{name: "nil tenant", headers: map[string]string{"Authorization": "Bearer " + noTenant}},
		{name: "mock headers without mock mode", headers: map[string]string{middleware.HeaderTenantID: ref.String()}},
	}
	r := newRouter(middleware.NewTenantAuth(signingKey, false, nil))
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			qt.Assert(t, do(r, "/whoami", test.headers).Code, qt.Equals, http.StatusUnauthorized)
		})
	}
}

func TestMockHeaders(t *testing.T) {
	c := qt.New(t)
	ref := uuid.New()
	r := newRouter(middleware.NewTenantAuth("", true, slugMap{"acme": ref}))

	rec := do(r, "/whoami", map[string]string{middleware.HeaderTenantID: ref.String(), middleware.HeaderUserID: "u1"})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode(c, rec), qt.Equals, echo{TenantID: ref.String(), UserID: "u1", Role: models.RoleAdmin})

	rec = do(r, "/whoami", map[string]string{middleware.HeaderTenantSlug: "acme", middleware.HeaderRole: "viewer"})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode(c, rec).Role, qt.Equals, models.RoleViewer)
	c.Assert(decode(c, rec).TenantID, qt.Equals, ref.String())

	c.Assert(do(r, "/whoami", map[string]string{middleware.HeaderTenantSlug: "ghost"}).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(do(r, "/whoami", map[string]string{middleware.HeaderTenantSlug: "paused"}).Code, qt.Equals, http.StatusForbidden)
	c.Assert(do(r, "/whoami", map[string]string{middleware.HeaderTenantID: "not-a-uuid"}).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(do(r, "/whoami", nil).Code, qt.Equals, http.StatusUnauthorized)
}

func TestRequireRole(t *testing.T) {
	c := qt.New(t)
	auth := middleware.NewTenantAuth("", true, nil)
	r := newRouter(auth, auth.RequireRole(models.RoleAdmin, models.RoleAnalyst))
	ref := uuid.New().String()

	c.Assert(do(r, "/whoami", map[string]string{middleware.HeaderTenantID: ref, middleware.HeaderRole: "analyst"}).Code, qt.Equals, http.StatusOK)
	c.Assert(do(r, "/whoami", map[string]string{middleware.HeaderTenantID: ref, middleware.HeaderRole: "viewer"}).Code, qt.Equals, http.StatusForbidden)
}

func TestRequireOwnTenant(t *testing.T) {
	c := qt.New(t)
	auth := middleware.NewTenantAuth("", true, nil)
	r := newRouter(auth, auth.RequireOwnTenant())
	ref := uuid.New().String()
	headers := map[string]string{middleware.HeaderTenantID: ref}

	c.Assert(do(r, "/tenants/"+ref, headers).Code, qt.Equals, http.StatusOK)
	c.Assert(do(r, "/tenants/"+uuid.New().String(), headers).Code, qt.Equals, http.StatusForbidden)
}

func TestRequestLogger(t *testing.T) {
	c := qt.New(t)
	log, hook := test.NewNullLogger()
	auth := middleware.NewTenantAuth("", true, nil)

	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.GET("/open", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/scoped", auth.RequireTenant(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := do(r, "/open", map[string]string{middleware.HeaderRequestID: "req-42"})
	c.Assert(rec.Header().Get(middleware.HeaderRequestID), qt.Equals, "req-42")
	entry := hook.LastEntry()
	c.Assert(entry.Data["request_id"], qt.Equals, "req-42")
	c.Assert(entry.Data["status"], qt.Equals, http.StatusNoContent)
	c.Assert(entry.Level, qt.Equals, logrus.InfoLevel)

	rec = do(r, "/open", nil)
	_, err := uuid.Parse(rec.Header().Get(middleware.HeaderRequestID))
	c.Assert(err, qt.IsNil)

	ref := uuid.New().String()
	do(r, "/scoped", map[string]string{middleware.HeaderTenantID: ref})
	c.Assert(hook.LastEntry().Data["tenant_id"], qt.Equals, ref)

	do(r, "/scoped", nil)
	c.Assert(hook.LastEntry().Level, qt.Equals, logrus.WarnLevel)
	c.Assert(hook.LastEntry().Data["status"], qt.Equals, http.StatusUnauthorized)
}
