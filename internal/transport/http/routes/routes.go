package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/josemoyano04/user-manager/internal/infra/config"
	"github.com/josemoyano04/user-manager/internal/transport/http/handlers"
	"github.com/josemoyano04/user-manager/internal/transport/http/middleware"
	"github.com/josemoyano04/user-manager/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     *usecase.AuthService
	Users    *usecase.UserService
	Recovery *usecase.PasswordRecoveryService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Services    ServiceSet
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	// MetricsHandler serves /metrics; defaults to the global prometheus registry.
	MetricsHandler http.Handler
	// Probes are run by /readyz, keyed by dependency name.
	Probes map[string]handlers.Probe
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	handlers.NewHealthHandler(deps.Probes).RegisterRoutes(r)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	requireAuth := middleware.RequireAuth(deps.Services.Auth)

	handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(r, loginMiddlewares(deps)...)
	handlers.NewUserHandler(deps.Services.Users).RegisterRoutes(r, requireAuth)
	handlers.NewRecoveryHandler(deps.Services.Recovery).RegisterRoutes(r, requireAuth, recoveryMiddlewares(deps))

	return r
}

func rateLimitWindow(cfg *config.AppConfig) time.Duration {
	if cfg.RateLimit.WindowDuration > 0 {
		return cfg.RateLimit.WindowDuration
	}
	return time.Minute
}

func loginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config.RateLimit.LoginMaxAttempts <= 0 {
		return nil
	}
	return []gin.HandlerFunc{deps.RateLimiter.Limit(middleware.RateLimitRule{
		Name:       "login_ip",
		Limit:      deps.Config.RateLimit.LoginMaxAttempts,
		Window:     rateLimitWindow(deps.Config),
		Identifier: middleware.ClientIPIdentifier(),
	})}
}

func recoveryMiddlewares(deps Dependencies) handlers.RecoveryMiddlewares {
	if deps.RateLimiter == nil || deps.Config.RateLimit.RecoveryMaxAttempts <= 0 {
		return handlers.RecoveryMiddlewares{}
	}

	rule := func(name string) []gin.HandlerFunc {
		return []gin.HandlerFunc{deps.RateLimiter.Limit(middleware.RateLimitRule{
			Name:       name,
			Limit:      deps.Config.RateLimit.RecoveryMaxAttempts,
			Window:     rateLimitWindow(deps.Config),
			Identifier: middleware.ClientIPIdentifier(),
		})}
	}
	return handlers.RecoveryMiddlewares{
		Request: rule("recovery_request_ip"),
		Verify:  rule("recovery_verify_ip"),
	}
}
