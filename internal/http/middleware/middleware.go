// Package middleware holds the cross-cutting HTTP layers of the service.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"pdf-export/internal/config"
	"pdf-export/internal/infra/logging"
)

// Deps are the collaborators Register wires into the chain. Tokens and Store
// may be nil when auth and rate limiting are disabled.
type Deps struct {
	Tokens interface {
		TokenValidator
		TokenRater
	}
	Store fiber.Storage
	Ready func() bool
}

// Register attaches global middleware to the app, in order: CORS, request id,
// health checks, access log, API-key auth and rate limits.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	var extraHeaders []string
	if cfg.Auth.Enabled {
		extraHeaders = append(extraHeaders, APIKeyHeader)
	}
	app.Use(CORS(extraHeaders...))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	ready := deps.Ready
	if ready == nil {
		ready = func() bool { return true }
	}
	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/health",
		ReadinessEndpoint: "/ops/ready",
		ReadinessProbe:    func(*fiber.Ctx) bool { return ready() },
	}))

	app.Use(AccessLog())

	if cfg.Auth.Enabled && deps.Tokens != nil {
		app.Use(APIKeyAuth(deps.Tokens))
		if deps.Store != nil {
			app.Use(TokenRateLimit(cfg.RateLimiter.Interval, deps.Tokens, deps.Store, NewLimiterCache()))
		}
	}
	if (cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0) && deps.Store != nil {
		app.Use(UserRateLimit(cfg.RateLimiter.UserLimit, cfg.RateLimiter.Interval, deps.Store))
	}
}

// AccessLog logs one line per request after it has been handled.
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		)
		return err
	}
}
