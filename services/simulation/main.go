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

type app struct {
	log       *logrus.Logger
	auth      *middleware.TenantAuth
	models    *ModelService
	scenarios *ScenarioService
	analyses  *AnalysisService
}

func newApp(db *gorm.DB, opts repository.Options, pub events.Publisher, auth *middleware.TenantAuth, log *logrus.Logger) *app {
	runner := crud.NewRunner(db, utils.DefaultRetryPolicy(), pub)

	modelRepo := repository.NewSimulationModelRepository(db, opts)
	scenarioRepo := repository.NewScenarioRepository(db, opts)
	orgRepo := repository.NewOrganizationRepository(db, opts)

	return &app{
		log:       log,
		auth:      auth.WithTenants(repository.NewTenantRepository(db, opts)),
		models:    NewModelService(runner, modelRepo, orgRepo),
		scenarios: NewScenarioService(runner, scenarioRepo, modelRepo, orgRepo),
		analyses:  NewAnalysisService(runner, repository.NewAnalysisRepository(db, opts), scenarioRepo),
	}
}

func (a *app) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(a.log))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Simulation service is healthy", nil)
	})

	api := router.Group("")
	api.Use(a.auth.RequireTenant())
	// Viewers read; analysts and admins write.
	write := a.auth.RequireRole(models.RoleAdmin, models.RoleAnalyst)

	simModels := api.Group("/models")
	{
		crud.NewHandler(a.models.Service, "Simulation model", decodeModel, patchModel).Register(simModels, write)
		simModels.GET("/by-name", handleGetModelByName(a.models))
		simModels.GET("/:id/scenarios", handleListModelScenarios(a.scenarios))
	}

	scenarios := api.Group("/scenarios")
	{
		crud.NewHandler[models.Scenario, *models.Scenario](a.scenarios.Service, "Scenario", nil, patchScenario).Register(scenarios, write)
		scenarios.POST("", write, handleCreateScenario(a.scenarios))
		scenarios.GET("/:id/analyses", handleListScenarioAnalyses(a.analyses))
	}

	analyses := api.Group("/analyses")
	{
		crud.NewHandler[models.Analysis, *models.Analysis](a.analyses.Service, "Analysis", nil, patchAnalysis).Register(analyses, write)
		analyses.POST("", write, handleCreateAnalysis(a.analyses))
	}

	return router
}

func main() {
	cfg, err := config.Load("simulation-service", "8003")
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
	router := newApp(db, opts, pub, auth, log).routes()

	utils.Serve(router, cfg.ServiceName, cfg.HTTPPort, log)
}
