package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/config"
	"github.com/pavitra93/go-simulation-admin/shared/crud"
	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// app wires the admin services to their routes.
type app struct {
	log         *logrus.Logger
	auth        *middleware.TenantAuth
	tenants     *TenantService
	users       *UserService
	orgs        *crud.Service[models.Organization, *models.Organization]
	permissions *PermissionService
	usage       *UsageService
}

func newApp(db *gorm.DB, opts repository.Options, cache *utils.TenantCache, pub events.Publisher, auth *middleware.TenantAuth, log *logrus.Logger) *app {
	runner := crud.NewRunner(db, utils.DefaultRetryPolicy(), pub)

	tenantRepo := repository.NewTenantRepository(db, opts)
	userRepo := repository.NewUserRepository(db, opts)

	return &app{
		log:         log,
		auth:        auth.WithTenants(tenantRepo),
		tenants:     NewTenantService(runner, tenantRepo, userRepo, cache),
		users:       NewUserService(runner, userRepo),
		orgs:        crud.NewService(runner, repository.NewOrganizationRepository(db, opts).Repository),
		permissions: NewPermissionService(runner, repository.NewPermissionRepository(db, opts), userRepo),
		usage:       NewUsageService(runner, repository.NewUsageStatRepository(db, opts), userRepo),
	}
}

func (a *app) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(a.log))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Admin service is healthy", nil)
	})

	// Platform routes span tenants and are open to operators only.
	platform := router.Group("/tenants")
	platform.Use(a.auth.RequireOperator())
	{
		platform.POST("", handleProvisionTenant(a.tenants))
		platform.GET("", handleListTenants(a.tenants))
		platform.POST("/:id/restore", handleRestoreTenant(a.tenants))
		platform.POST("/:id/suspend", handleSetTenantActive(a.tenants, false))
		platform.POST("/:id/activate", handleSetTenantActive(a.tenants, true))
	}

	api := router.Group("")
	api.Use(a.auth.RequireTenant())
	admin := adminOnly(a.auth)

	tenants := api.Group("/tenants")
	{
		own := a.auth.RequireOwnTenant()
		tenants.GET("/:id", own, handleGetTenant(a.tenants))
		tenants.PATCH("/:id", own, admin, handleUpdateTenant(a.tenants))
		tenants.DELETE("/:id", own, admin, handleDeleteTenant(a.tenants))
	}

	users := api.Group("/users")
	{
		crud.NewHandler(a.users.Service, "User", decodeUser, patchUser).Register(users, admin)
		users.GET("/by-email", handleGetUserByEmail(a.users))
		users.GET("/by-role/:role", handleListUsersByRole(a.users))
		users.POST("/:id/login", selfOrAdmin(), handleRecordLogin(a.users))
		users.GET("/:id/permissions", handleListUserPermissions(a.permissions))
	}

	orgs := api.Group("/organizations")
	crud.NewHandler(a.orgs, "Organization", decodeOrganization, patchOrganization).Register(orgs, admin)

	perms := api.Group("/permissions")
	{
		crud.NewHandler[models.Permission, *models.Permission](a.permissions.Service, "Permission", nil, nil).Register(perms, admin)
		perms.POST("", admin, handleGrantPermission(a.permissions))
		perms.GET("/check", handleCheckPermission(a.permissions))
	}

	usage := api.Group("/usage")
	{
		crud.NewHandler[models.UsageStat, *models.UsageStat](a.usage.Service, "Usage record", nil, nil).Register(usage, admin)
		usage.POST("", handleRecordUsage(a.usage))
		usage.GET("/summary", handleUsageSummary(a.usage))
	}

	return router
}

func main() {
	cfg, err := config.Load("admin-service", "8002")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateAuth(); err != nil {
		logrus.WithError(err).Fatal("Invalid auth configuration")
	}
	log := logging.New(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.ConnectDatabase(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	opts := repository.Options{DefaultLimit: cfg.Pagination.DefaultLimit, MaxLimit: cfg.Pagination.MaxLimit}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = utils.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("Tenant cache disabled")
		} else {
			defer redisClient.Close()
		}
	}
	cache := utils.NewTenantCache(redisClient, repository.NewTenantRepository(db, opts), cfg.Redis.TenantCacheTTL, log)

	var pub events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Broker != "" {
		pub = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Broker), cfg.Kafka.Topic, cfg.Kafka.Workers, cfg.Kafka.Buffer, log)
	}
	defer pub.Close()

	auth := middleware.NewTenantAuth(cfg.Auth.SigningKey, cfg.Auth.Mock, cache)
	router := newApp(db, opts, cache, pub, auth, log).routes()

	utils.Serve(router, cfg.ServiceName, cfg.HTTPPort, log)
}
