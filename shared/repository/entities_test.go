package repository_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
)

func TestTenantLookups(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()

	sub := "acme"
	acme, err := f.tenants.Register(ctx, &models.Tenant{Name: "Acme", Slug: "acme", Subdomain: &sub, IsActive: true})
	c.Assert(err, qt.IsNil)

	got, err := f.tenants.GetBySlug(ctx, "  ACME ")
	c.Assert(err, qt.IsNil)
	c.Assert(got.LogicalID, qt.Equals, acme.LogicalID)

	got, err = f.tenants.GetBySubdomain(ctx, "acme")
	c.Assert(err, qt.IsNil)
	c.Assert(got.LogicalID, qt.Equals, acme.LogicalID)

	got, err = f.tenants.Get(ctx, acme.LogicalID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Name, qt.Equals, "Acme")

	_, err = f.tenants.GetBySlug(ctx, "")
	c.Assert(err, qt.ErrorIs, repository.ErrNotFound)

	ok, err := f.tenants.SoftDelete(ctx, acme.LogicalID, acme.LogicalID)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	_, err = f.tenants.GetBySlug(ctx, "acme")
	c.Assert(err, qt.ErrorIs, repository.ErrNotFound)
	all, err := f.tenants.ListAll(ctx, repository.Page{})
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 0)
}

func TestRegisterKeepsSuppliedID(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)

	id := uuid.New()
	tn, err := f.tenants.Register(context.Background(), &models.Tenant{TenantBase: models.TenantBase{Base: models.Base{LogicalID: id}}, Name: "Acme", Slug: "acme"})
	c.Assert(err, qt.IsNil)
	c.Assert(tn.LogicalID, qt.Equals, id)
	c.Assert(tn.IsActive, qt.IsFalse)
}

func TestUserQueries(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	ref := f.tenant(c, "acme").LogicalID

	admin, err := f.users.Create(ctx, ref, &models.User{Email: "root@acme.test", Role: models.RoleAdmin})
	c.Assert(err, qt.IsNil)
	f.user(c, ref, "viewer@acme.test")

	got, err := f.users.GetByEmail(ctx, ref, " ROOT@acme.test")
	c.Assert(err, qt.IsNil)
	c.Assert(got.LogicalID, qt.Equals, admin.LogicalID)

	admins, err := f.users.ListByRole(ctx, ref, models.RoleAdmin, repository.Page{})
	c.Assert(err, qt.IsNil)
	c.Assert(admins, qt.HasLen, 1)

	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	updated, err := f.users.RecordLogin(ctx, admin, at)
	c.Assert(err, qt.IsNil)
	c.Assert(updated.LastLoginAt, qt.IsNotNil)
	c.Assert(updated.LastLoginAt.Equal(at), qt.IsTrue)
}

func TestPermissionQueries(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	ref := f.tenant(c, "acme").LogicalID
	user := f.user(c, ref, "ada@acme.test")
	perms := repository.NewPermissionRepository(f.db, repository.DefaultOptions())

	_, err := perms.Create(ctx, ref, &models.Permission{UserRef: user.LogicalID, Resource: "scenarios", Action: "write"})
	c.Assert(err, qt.IsNil)
	_, err = perms.Create(ctx, ref, &models.Permission{UserRef: user.LogicalID, Resource: "scenarios", Action: "write"})
	c.Assert(err, qt.ErrorIs, repository.ErrConflict)

	got, err := perms.Lookup(ctx, ref, user.LogicalID, "scenarios", "write")
	c.Assert(err, qt.IsNil)
	c.Assert(got.UserRef, qt.Equals, user.LogicalID)

	_, err = perms.Lookup(ctx, ref, user.LogicalID, "scenarios", "delete")
	c.Assert(err, qt.ErrorIs, repository.ErrNotFound)

	list, err := perms.ListForUser(ctx, ref, user.LogicalID, repository.Page{})
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 1)
}

func TestOrganizationByName(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	u1 := f.tenant(c, "acme").LogicalID
	u2 := f.tenant(c, "globex").LogicalID
	orgs := repository.NewOrganizationRepository(f.db, repository.DefaultOptions())

	_, err := orgs.Create(ctx, u1, &models.Organization{Name: "Research"})
	c.Assert(err, qt.IsNil)
	// Unique keys are per tenant.
	_, err = orgs.Create(ctx, u2, &models.Organization{Name: "Research"})
	c.Assert(err, qt.IsNil)

	got, err := orgs.GetByName(ctx, u1, "Research")
	c.Assert(err, qt.IsNil)
	c.Assert(got.TenantRef, qt.Equals, u1)
}

func TestSimulationQueries(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	ref := f.tenant(c, "acme").LogicalID
	opts := repository.DefaultOptions()
	simModels := repository.NewSimulationModelRepository(f.db, opts)
	scenarios := repository.NewScenarioRepository(f.db, opts)
	analyses := repository.NewAnalysisRepository(f.db, opts)

	m1, err := simModels.Create(ctx, ref, &models.SimulationModel{Name: "climate", Version: "1.0"})
	c.Assert(err, qt.IsNil)
	_, err = simModels.Create(ctx, ref, &models.SimulationModel{Name: "climate", Version: "2.0"})
	c.Assert(err, qt.IsNil)
	_, err = simModels.Create(ctx, ref, &models.SimulationModel{Name: "climate", Version: "1.0"})
	c.Assert(err, qt.ErrorIs, repository.ErrConflict)

	got, err := simModels.GetByNameVersion(ctx, ref, "climate", "2.0")
	c.Assert(err, qt.IsNil)
	c.Assert(got.Version, qt.Equals, "2.0")

	sc, err := scenarios.Create(ctx, ref, &models.Scenario{Name: "baseline", ModelRef: m1.LogicalID, Parameters: "{}", Status: models.ScenarioDraft})
	c.Assert(err, qt.IsNil)
	byModel, err := scenarios.ListByModel(ctx, ref, m1.LogicalID, repository.Page{})
	c.Assert(err, qt.IsNil)
	c.Assert(byModel, qt.HasLen, 1)

	_, err = analyses.Create(ctx, ref, &models.Analysis{ScenarioRef: sc.LogicalID, Title: "first", Status: models.AnalysisPending})
	c.Assert(err, qt.IsNil)
	byScenario, err := analyses.ListByScenario(ctx, ref, sc.LogicalID, repository.Page{})
	c.Assert(err, qt.IsNil)
	c.Assert(byScenario, qt.HasLen, 1)
	c.Assert(byScenario[0].Title, qt.Equals, "first")
}

func TestUsageSumByMetric(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t)
	ctx := context.Background()
	ref := f.tenant(c, "acme").LogicalID
	ada := f.user(c, ref, "ada@acme.test")
	bob := f.user(c, ref, "bob@acme.test")
	usage := repository.NewUsageStatRepository(f.db, repository.DefaultOptions())

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []models.UsageStat{
		{UserRef: ada.LogicalID, Metric: "runs", Quantity: 3, PeriodStart: jan},
		{UserRef: ada.LogicalID, Metric: "runs", Quantity: 4, PeriodStart: feb},
		{UserRef: bob.LogicalID, Metric: "runs", Quantity: 5, PeriodStart: feb},
		{UserRef: bob.LogicalID, Metric: "storage", Quantity: 100, PeriodStart: feb},
	} {
		s := s
		_, err := usage.Create(ctx, ref, &s)
		c.Assert(err, qt.IsNil)
	}

	total, err := usage.SumByMetric(ctx, ref, nil, "runs", time.Time{})
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, int64(12))

	total, err = usage.SumByMetric(ctx, ref, &ada.LogicalID, "runs", feb)
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, int64(4))

	total, err = usage.SumByMetric(ctx, ref, nil, "cpu", time.Time{})
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, int64(0))
}
