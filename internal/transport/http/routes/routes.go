package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/infra/config"
	"github.com/KVLNK12305/Akira/internal/transport/http/handlers"
	"github.com/KVLNK12305/Akira/internal/transport/http/middleware"
)

// AuthService drives the login flow and resolves session tokens.
type AuthService interface {
	handlers.AuthService
	middleware.SessionAuthenticator
}

// KeyService manages keys for owners and authenticates machines.
type KeyService interface {
	handlers.KeyService
	middleware.KeyAuthenticator
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth           AuthService
	Keys           KeyService
	Audit          handlers.AuditService
	Identities     handlers.IdentityService
	AccessRequests handlers.AccessRequestService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	// Gatherer backs /metrics. The default registry is used when nil.
	Gatherer prometheus.Gatherer
	// Tracer opens request spans. The global provider is used when nil.
	Tracer   trace.Tracer
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(deps.Tracer))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler(deps.Gatherer))

	api := r.Group("/api/v1")

	if deps.Services.Auth == nil {
		return r
	}
	requireSession := middleware.RequireSession(deps.Services.Auth)

	handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(api.Group("/auth"), requireSession)

	if deps.Services.Keys != nil {
		handlers.NewKeyHandler(deps.Services.Keys).RegisterRoutes(api.Group("/keys", requireSession))

		dataHandler := handlers.NewDataHandler()
		api.GET("/data/secret-report",
			middleware.RequireAPIKey(deps.Services.Keys, domain.ScopeReadData),
			dataHandler.SecretReport,
		)
	}

	if deps.Services.Audit != nil {
		handlers.NewAuditHandler(deps.Services.Audit).RegisterRoutes(api.Group("/audit", requireSession))
	}

	if deps.Services.Identities != nil {
		handlers.NewIdentityHandler(deps.Services.Identities).RegisterRoutes(api.Group("/identities", requireSession))
	}

	if deps.Services.AccessRequests != nil {
		handlers.NewAccessRequestHandler(deps.Services.AccessRequests).RegisterRoutes(api.Group("/access-requests", requireSession))
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
