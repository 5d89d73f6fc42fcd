package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/unite-hub/synthex-gateway/internal/middleware"
)

// RouterOptions configures the HTTP router assembly.
type RouterOptions struct {
	AdminAPIKey        string
	RateLimitPerMinute int
	RedisClient        *redis.Client // nil disables rate limiting
	Debug              bool
}

// NewRouter assembles the Gin engine: recovery, logging, tenant extraction,
// CORS, the caller-facing route endpoint, and the admin-protected management
// API.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging())
	r.Use(middleware.Tenant())

	// CORS for the dashboard.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key", middleware.TenantHeader},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.HealthCheck)

	// Caller-facing dispatch endpoint, rate limited per tenant.
	route := r.Group("/v1")
	route.Use(middleware.RateLimit(opts.RedisClient, int64(opts.RateLimitPerMinute), time.Minute))
	{
		route.POST("/route", h.Route)
	}

	// Management API. AdminAuth fails secure when no key is configured.
	v1 := r.Group("/api/v1")
	v1.Use(middleware.AdminAuth(opts.AdminAPIKey))
	{
		v1.GET("/models", h.ListModels)
		v1.GET("/routes", h.ListRoutes)

		v1.GET("/budgets/:tenant_id", h.GetBudget)
		v1.PUT("/budgets/:tenant_id", h.SetBudget)

		v1.GET("/usage/summary", h.GetUsageSummary)
		v1.GET("/usage/records", h.GetUsageRecords)

		v1.GET("/insights", h.GetInsights)
		v1.GET("/report", h.GetReport)
	}

	return r
}
