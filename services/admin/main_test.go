package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/testdb"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type client struct {
	c      *qt.C
	router http.Handler
	tenant string
	user   string
	role   models.UserRole
}

// newClient returns a client acting as a platform operator.
func newClient(c *qt.C) *client {
	db := testdb.Open(c)
	log, _ := test.NewNullLogger()
	auth := middleware.NewTenantAuth("", true, nil)
	a := newApp(db, repository.DefaultOptions(), nil, &events.MemoryPublisher{}, auth, log)
	return &client{c: c, router: a.routes(), role: models.RoleOperator}
}

func (cl *client) as(tenant string, role models.UserRole) *client {
	clone := *cl
	clone.tenant, clone.role, clone.user = tenant, role, ""
	return &clone
}

func (cl *client) asUser(user string) *client {
	clone := *cl
	clone.user = user
	return &clone
}

func (cl *client) do(method, path string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		cl.c.Assert(json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cl.tenant != "" {
		req.Header.Set(middleware.HeaderTenantID, cl.tenant)
	}
	if cl.user != "" {
		req.Header.Set(middleware.HeaderUserID, cl.user)
	}
	req.Header.Set(middleware.HeaderRole, string(cl.role))
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	if out != nil {
		cl.c.Assert(json.Unmarshal(rec.Body.Bytes(), out), qt.IsNil, qt.Commentf("body: %s", rec.Body.String()))
	}
	return rec.Code
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

type provisioned struct {
	Tenant models.Tenant `json:"tenant"`
	Admin  models.User   `json:"admin"`
}

// provision bootstraps a tenant through the operator client and returns a
// client acting as the tenant's admin.
func provision(cl *client, slug string) (*client, provisioned) {
	var resp envelope[provisioned]
	code := cl.do(http.MethodPost, "/tenants", map[string]string{
		"name":        slug,
		"slug":        slug,
		"admin_email": "admin@" + slug + ".test",
	}, &resp)
	cl.c.Assert(code, qt.Equals, http.StatusCreated)
	return cl.as(resp.Data.Tenant.LogicalID.String(), models.RoleAdmin), resp.Data
}

func TestHealth(t *testing.T) {
	c := qt.New(t)
	cl := newClient(c)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	cl.router.ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
}

func TestTenantRoutes(t *testing.T) {
	c := qt.New(t)
	root := newClient(c)
	acme, p := provision(root, "acme")
	globex, _ := provision(root, "globex")
	id := p.Tenant.LogicalID.String()

	c.Assert(p.Admin.Role, qt.Equals, models.RoleAdmin)
	c.Assert(p.Admin.TenantRef, qt.Equals, p.Tenant.LogicalID)

	var got envelope[models.Tenant]
	c.Assert(acme.do(http.MethodGet, "/tenants/"+id, nil, &got), qt.Equals, http.StatusOK)
	c.Assert(got.Data.Slug, qt.Equals, "acme")

	c.Assert(globex.do(http.MethodGet, "/tenants/"+id, nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(acme.as(id, models.RoleViewer).do(http.MethodPatch, "/tenants/"+id, map[string]string{"plan": "pro"}, nil), qt.Equals, http.StatusForbidden)

	got = envelope[models.Tenant]{}
	c.Assert(acme.do(http.MethodPatch, "/tenants/"+id, map[string]any{"plan": "pro", "slug": "ACME-CO"}, &got), qt.Equals, http.StatusOK)
	c.Assert(got.Data.Plan, qt.Equals, "pro")
	c.Assert(got.Data.Slug, qt.Equals, "acme-co")

	code := root.do(http.MethodPost, "/tenants", map[string]string{"name": "x", "slug": "acme-co", "admin_email": "x@x.test"}, nil)
	c.Assert(code, qt.Equals, http.StatusConflict)
	code = root.do(http.MethodPost, "/tenants", map[string]string{"name": "x", "slug": "x", "admin_email": "not-an-email"}, nil)
	c.Assert(code, qt.Equals, http.StatusBadRequest)

	// A tenant admin is deleted/restored by the operator only.
	c.Assert(acme.do(http.MethodDelete, "/tenants/"+id, nil, nil), qt.Equals, http.StatusOK)
	c.Assert(acme.do(http.MethodGet, "/tenants/"+id, nil, nil), qt.Equals, http.StatusUnauthorized)
	c.Assert(acme.do(http.MethodPost, "/tenants/"+id+"/restore", nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(root.do(http.MethodPost, "/tenants/"+id+"/restore", nil, nil), qt.Equals, http.StatusOK)
	c.Assert(acme.do(http.MethodGet, "/tenants/"+id, nil, nil), qt.Equals, http.StatusOK)
}

func TestPlatformRoutesNeedOperator(t *testing.T) {
	c := qt.New(t)
	root := newClient(c)
	acme, _ := provision(root, "acme")
	provision(root, "globex")

	var all envelope[struct {
		Items []models.Tenant `json:"items"`
	}]
	c.Assert(root.do(http.MethodGet, "/tenants", nil, &all), qt.Equals, http.StatusOK)
	c.Assert(all.Data.Items, qt.HasLen, 2)

	// A tenant admin sees neither the platform listing nor provisioning.
	c.Assert(acme.do(http.MethodGet, "/tenants", nil, nil), qt.Equals, http.StatusForbidden)
	body := map[string]string{"name": "Initech", "slug": "initech", "admin_email": "a@initech.test"}
	c.Assert(acme.do(http.MethodPost, "/tenants", body, nil), qt.Equals, http.StatusForbidden)
	c.Assert(root.as("", models.RoleAdmin).do(http.MethodGet, "/tenants", nil, nil), qt.Equals, http.StatusForbidden)

	// An operator has no tenant scope of its own.
	c.Assert(root.do(http.MethodGet, "/organizations", nil, nil), qt.Equals, http.StatusUnauthorized)
}

func TestSuspendedTenantIsRefused(t *testing.T) {
	c := qt.New(t)
	root := newClient(c)
	acme, p := provision(root, "acme")
	id := p.Tenant.LogicalID.String()

	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"name": "Research"}, nil), qt.Equals, http.StatusCreated)

	// Tenant admins cannot switch their own tenant off.
	var got envelope[models.Tenant]
	c.Assert(acme.do(http.MethodPatch, "/tenants/"+id, map[string]any{"is_active": false}, &got), qt.Equals, http.StatusOK)
	c.Assert(got.Data.IsActive, qt.IsTrue)

	c.Assert(acme.do(http.MethodPost, "/tenants/"+id+"/suspend", nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(root.do(http.MethodPost, "/tenants/"+id+"/suspend", nil, nil), qt.Equals, http.StatusOK)

	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"name": "Sales"}, nil), qt.Equals, http.StatusForbidden)
	c.Assert(acme.do(http.MethodGet, "/organizations", nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(acme.do(http.MethodGet, "/tenants/"+id, nil, nil), qt.Equals, http.StatusForbidden)

	c.Assert(root.do(http.MethodPost, "/tenants/"+id+"/activate", nil, nil), qt.Equals, http.StatusOK)
	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"name": "Sales"}, nil), qt.Equals, http.StatusCreated)

	// Unknown and deleted tenants are not authenticated at all.
	c.Assert(acme.as(uuid.NewString(), models.RoleAdmin).do(http.MethodGet, "/organizations", nil, nil), qt.Equals, http.StatusUnauthorized)
	c.Assert(acme.do(http.MethodDelete, "/tenants/"+id, nil, nil), qt.Equals, http.StatusOK)
	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"name": "Ops"}, nil), qt.Equals, http.StatusUnauthorized)
}

func TestUserRoutes(t *testing.T) {
	c := qt.New(t)
	acme, p := provision(newClient(c), "acme")

	var created envelope[models.User]
	code := acme.do(http.MethodPost, "/users", map[string]string{"email": "Ada@Acme.test", "role": "analyst"}, &created)
	c.Assert(code, qt.Equals, http.StatusCreated)
	c.Assert(created.Data.Email, qt.Equals, "ada@acme.test")
	c.Assert(created.Data.TenantRef, qt.Equals, p.Tenant.LogicalID)

	c.Assert(acme.do(http.MethodPost, "/users", map[string]string{"email": "ada@acme.test"}, nil), qt.Equals, http.StatusConflict)
	c.Assert(acme.do(http.MethodPost, "/users", map[string]string{"email": "eve@acme.test", "role": "root"}, nil), qt.Equals, http.StatusBadRequest)
	c.Assert(acme.as(acme.tenant, models.RoleViewer).do(http.MethodPost, "/users", map[string]string{"email": "eve@acme.test"}, nil), qt.Equals, http.StatusForbidden)

	var byEmail envelope[models.User]
	c.Assert(acme.do(http.MethodGet, "/users/by-email?email=ADA@acme.test", nil, &byEmail), qt.Equals, http.StatusOK)
	c.Assert(byEmail.Data.LogicalID, qt.Equals, created.Data.LogicalID)

	var analysts envelope[struct {
		Items []models.User `json:"items"`
	}]
	c.Assert(acme.do(http.MethodGet, "/users/by-role/analyst", nil, &analysts), qt.Equals, http.StatusOK)
	c.Assert(analysts.Data.Items, qt.HasLen, 1)
	c.Assert(acme.do(http.MethodGet, "/users/by-role/root", nil, nil), qt.Equals, http.StatusBadRequest)

	adaID := created.Data.LogicalID.String()
	var login envelope[models.User]
	c.Assert(acme.do(http.MethodPost, "/users/"+adaID+"/login", nil, &login), qt.Equals, http.StatusOK)
	c.Assert(login.Data.LastLoginAt, qt.IsNotNil)

	// Non-admins may only record their own sign-in.
	viewer := acme.as(acme.tenant, models.RoleViewer)
	c.Assert(viewer.do(http.MethodPost, "/users/"+adaID+"/login", nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(viewer.asUser(p.Admin.LogicalID.String()).do(http.MethodPost, "/users/"+adaID+"/login", nil, nil), qt.Equals, http.StatusForbidden)
	c.Assert(viewer.asUser(adaID).do(http.MethodPost, "/users/"+adaID+"/login", nil, nil), qt.Equals, http.StatusOK)

	// Another tenant sees none of it.
	globex, _ := provision(acme.as("", models.RoleOperator), "globex")
	c.Assert(globex.do(http.MethodGet, "/users/"+adaID, nil, nil), qt.Equals, http.StatusNotFound)
}

func TestPermissionRoutes(t *testing.T) {
	c := qt.New(t)
	acme, p := provision(newClient(c), "acme")
	userID := p.Admin.LogicalID.String()

	grant := map[string]string{"user_id": userID, "resource": "scenarios", "action": "run"}
	c.Assert(acme.do(http.MethodPost, "/permissions", grant, nil), qt.Equals, http.StatusCreated)
	c.Assert(acme.do(http.MethodPost, "/permissions", grant, nil), qt.Equals, http.StatusConflict)
	unknown := map[string]string{"user_id": uuid.NewString(), "resource": "scenarios", "action": "run"}
	c.Assert(acme.do(http.MethodPost, "/permissions", unknown, nil), qt.Equals, http.StatusNotFound)

	var check envelope[struct {
		Allowed bool `json:"allowed"`
	}]
	c.Assert(acme.do(http.MethodGet, "/permissions/check?user_id="+userID+"&resource=scenarios&action=run", nil, &check), qt.Equals, http.StatusOK)
	c.Assert(check.Data.Allowed, qt.IsTrue)
	c.Assert(acme.do(http.MethodGet, "/permissions/check?user_id=nope&resource=scenarios&action=run", nil, nil), qt.Equals, http.StatusBadRequest)

	var list envelope[struct {
		Count int `json:"count"`
	}]
	c.Assert(acme.do(http.MethodGet, "/users/"+userID+"/permissions", nil, &list), qt.Equals, http.StatusOK)
	c.Assert(list.Data.Count, qt.Equals, 1)
}

func TestUsageRoutes(t *testing.T) {
	c := qt.New(t)
	acme, p := provision(newClient(c), "acme")
	userID := p.Admin.LogicalID.String()

	for _, q := range []int{3, 4} {
		body := map[string]any{"user_id": userID, "metric": "runs", "quantity": q, "period_start": "2024-03-01T00:00:00Z"}
		c.Assert(acme.do(http.MethodPost, "/usage", body, nil), qt.Equals, http.StatusCreated)
	}
	c.Assert(acme.do(http.MethodPost, "/usage", map[string]any{"user_id": userID, "metric": "runs", "quantity": -1}, nil), qt.Equals, http.StatusBadRequest)

	var summary envelope[struct {
		Metric string `json:"metric"`
		Total  int64  `json:"total"`
	}]
	c.Assert(acme.do(http.MethodGet, "/usage/summary?metric=runs&since=2024-01-01T00:00:00Z", nil, &summary), qt.Equals, http.StatusOK)
	c.Assert(summary.Data.Total, qt.Equals, int64(7))
	c.Assert(acme.do(http.MethodGet, "/usage/summary?metric=runs&since=yesterday", nil, nil), qt.Equals, http.StatusBadRequest)
	c.Assert(acme.do(http.MethodGet, "/usage/summary", nil, nil), qt.Equals, http.StatusBadRequest)
}

func TestOrganizationRoutes(t *testing.T) {
	c := qt.New(t)
	acme, _ := provision(newClient(c), "acme")

	var created envelope[models.Organization]
	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"name": "Research"}, &created), qt.Equals, http.StatusCreated)
	c.Assert(acme.do(http.MethodPost, "/organizations", map[string]string{"description": "no name"}, nil), qt.Equals, http.StatusBadRequest)

	var found envelope[struct {
		Count int `json:"count"`
	}]
	c.Assert(acme.do(http.MethodGet, "/organizations/search?q=SEARCH", nil, &found), qt.Equals, http.StatusOK)
	c.Assert(found.Data.Count, qt.Equals, 1)
}
