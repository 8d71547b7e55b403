package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/rbac-authz/auth-api/docs"
	"github.com/rbac-authz/auth-api/internal/api/handler"
	"github.com/rbac-authz/auth-api/internal/api/middleware"
	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// Dependencies are the services the router wires into handlers.
type Dependencies struct {
	Auth       ports.AuthService
	Authorizer ports.Authorizer
	Promotions ports.PromotionService
	Audit      ports.AuditService
	// Readiness checks, keyed by dependency name.
	Checks map[string]handler.Pinger
	Log    zerolog.Logger
	// Registry receives the HTTP request metrics and backs /metrics.
	// Nil means the default Prometheus registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "authz",
		Registerer: registerer,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	protectedHandler := handler.NewProtectedHandler()
	adminHandler := handler.NewAdminHandler(deps.Promotions, deps.Audit)
	authMiddleware := middleware.Auth(deps.Authorizer)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Protected routes ---
	protected := e.Group("/protected", authMiddleware)
	protected.GET("/me", protectedHandler.Me)
	protected.GET("/admin", protectedHandler.Admin, middleware.RBAC(domain.RoleAdmin))

	// --- Admin routes (services re-authorize from the token) ---
	admin := e.Group("/admin")
	admin.POST("/promote/:user_id", adminHandler.Promote)
	admin.GET("/audit-logs", adminHandler.AuditLogs)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Ops ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger emits one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
