package main

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-simulation-admin/shared/config"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// newRouter mounts the public routes. Requests without a tenant context are
// rejected here, except platform operators on the admin routes; the services
// check the token again.
func newRouter(clients *ServiceClients, auth *middleware.TenantAuth, log *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Tenant-ID, X-Tenant-Slug, X-User-ID, X-User-Role, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API Gateway is healthy", nil)
	})

	api := router.Group("")
	api.Use(auth.RequireTenant())

	api.GET("/health/services", auth.RequireRole(models.RoleAdmin), func(c *gin.Context) {
		utils.OKResponse(c, "", clients.GetServiceStatus(c.Request.Context()))
	})

	admin := router.Group("")
	admin.Use(auth.RequireTenantOrOperator())
	for _, prefix := range []string{"/tenants", "/users", "/organizations", "/permissions", "/usage"} {
		admin.Any(prefix, clients.Admin.ProxyRequest)
		admin.Any(prefix+"/*path", clients.Admin.ProxyRequest)
	}
	for _, prefix := range []string{"/models", "/scenarios", "/analyses"} {
		api.Any(prefix, clients.Simulation.ProxyRequest)
		api.Any(prefix+"/*path", clients.Simulation.ProxyRequest)
	}

	return router
}

func main() {
	cfg, err := config.Load("api-gateway", "8080")
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

	clients := &ServiceClients{
		Admin:      NewServiceClient("admin-service", cfg.Upstreams.AdminURL, log),
		Simulation: NewServiceClient("simulation-service", cfg.Upstreams.SimulationURL, log),
	}

	// The gateway has no database, so mock requests must carry X-Tenant-ID.
	auth := middleware.NewTenantAuth(cfg.Auth.SigningKey, cfg.Auth.Mock, nil)

	utils.Serve(newRouter(clients, auth, log), cfg.ServiceName, cfg.HTTPPort, log)
}
