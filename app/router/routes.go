// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/amirphl/wedding-automations/app/dto"
	"github.com/amirphl/wedding-automations/app/handlers"
	"github.com/amirphl/wedding-automations/app/middleware"
	"github.com/amirphl/wedding-automations/config"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app               *fiber.App
	cfg               *config.ProductionConfig
	automationHandler handlers.AutomationHandlerInterface
	webhookHandler    handlers.WebhookHandlerInterface
	healthHandler     *handlers.HealthHandler
	authMiddleware    *middleware.AuthMiddleware
	logger            zerolog.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	automationHandler handlers.AutomationHandlerInterface,
	webhookHandler handlers.WebhookHandlerInterface,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
	logger zerolog.Logger,
) Router {
	fiberCfg := fiber.Config{
		AppName:      "Wedding Automations API",
		ServerHeader: "wedding-automations",
		ErrorHandler: errorHandler(logger),
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	}
	if cfg.Server.ProxyHeader != "" {
		fiberCfg.ProxyHeader = cfg.Server.ProxyHeader
		fiberCfg.TrustProxy = true
		fiberCfg.TrustProxyConfig = fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies}
	}

	return &FiberRouter{
		app:               fiber.New(fiberCfg),
		cfg:               cfg,
		automationHandler: automationHandler,
		webhookHandler:    webhookHandler,
		healthHandler:     healthHandler,
		authMiddleware:    authMiddleware,
		logger:            logger.With().Str("component", "http").Logger(),
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthHandler.Health)

	// Providers retry aggressively; keep the limit well above their burst
	webhooks := api.Group("/webhooks")
	webhooks.Use(newLimiter(6000, time.Minute))
	webhooks.Post("/delivery-status", r.webhookHandler.DeliveryStatus)

	operator := api.Group("/operator")
	operator.Use(newLimiter(600, time.Minute))
	operator.Use(r.authMiddleware.OperatorAuthenticate())

	automations := operator.Group("/automations")
	automations.Post("/", r.automationHandler.Create)
	automations.Post("/generate", r.automationHandler.Generate)
	automations.Get("/:id", r.automationHandler.Get)
	automations.Put("/:id/active", r.automationHandler.SetActive)
	automations.Post("/:id/trigger", r.automationHandler.Trigger)
	automations.Post("/:id/resume", r.automationHandler.Resume)
	automations.Post("/:id/refresh", r.automationHandler.Refresh)
	automations.Get("/:id/report.xlsx", r.automationHandler.FailureReport)

	r.app.Use(r.notFoundHandler)

	r.logger.Info().Msg("routes configured")
}

func (r *FiberRouter) setupMiddleware() {
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error().
				Str("request_id", c.Get("X-Request-ID")).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Interface("panic", e).
				Msg("panic recovered")
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "no-referrer",
	}))

	r.app.Use(middleware.RequestLogger(r.logger, healthPath, r.cfg.Metrics.Path))
	r.app.Use(middleware.Metrics(
		middleware.RouteGroup{Name: "webhook", Prefix: "/api/v1/webhooks"},
		middleware.RouteGroup{Name: "operator", Prefix: "/api/v1/operator"},
		middleware.RouteGroup{Name: "system", Prefix: healthPath},
		middleware.RouteGroup{Name: "system", Prefix: r.cfg.Metrics.Path},
	))
}

func newLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info().Str("address", address).Msg("starting server")
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.Get("X-Request-ID"),
			},
		},
	})
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An internal server error occurred"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Int("status", code).Str("path", c.Path()).Msg("request failed")
		}

		return c.Status(code).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error: dto.ErrorDetail{
				Code: "INTERNAL_ERROR",
				Details: fiber.Map{
					"timestamp":  utils.UTCNow().Unix(),
					"request_id": c.Get("X-Request-ID"),
				},
			},
		})
	}
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
