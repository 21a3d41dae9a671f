// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"pdf-export/internal/config"
	"pdf-export/internal/http/handlers"
	"pdf-export/internal/http/middleware"
	"pdf-export/internal/infra/logging"
	"pdf-export/internal/tokens"
)

// An escaped character takes at most six bytes on the wire (\u003c in JSON),
// so the transport limit admits any encoding of limits.max_html_bytes of HTML.
// The handler enforces the exact limit on the decoded input.
const (
	maxEncodingFactor = 6
	bodySlack         = 1 << 20
)

// BodyLimit is the largest request body accepted for maxHTMLBytes of HTML.
func BodyLimit(maxHTMLBytes int) int {
	return maxEncodingFactor*maxHTMLBytes + bodySlack
}

// Deps are the collaborators of the app. Engine defaults to NewEngine(Config);
// Redis, Tokens and Store are optional.
type Deps struct {
	Config config.Config
	Engine Engine
	Redis  *redis.Client
	Tokens *tokens.Cache
	Store  fiber.Storage
}

// New creates and configures the Fiber app.
func New(deps Deps) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             BodyLimit(cfg.Limits.MaxHTMLBytes),
		ErrorHandler:          newErrorHandler(corsExtraHeaders(cfg)),
	})

	mwDeps := middleware.Deps{Store: deps.Store}
	if deps.Tokens != nil {
		mwDeps.Tokens = deps.Tokens
		if cfg.Auth.Enabled {
			mwDeps.Ready = deps.Tokens.Ready
		}
	}
	middleware.Register(app, cfg, mwDeps)

	engine := deps.Engine
	if engine == nil {
		engine = NewEngine(cfg)
	}
	RegisterRoutes(app, cfg, engine, deps.Redis)

	// Unknown routes get the JSON error envelope as well.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts the export endpoint and the ops routes.
func RegisterRoutes(app *fiber.App, cfg config.Config, engine Engine, rdb *redis.Client) {
	export := handlers.NewExportHandler(
		withCache(engine, cfg, rdb),
		cfg.PDF.Filename,
		cfg.Limits.MaxHTMLBytes,
		cfg.Limits.MaxPDFBytes,
	)
	app.All(cfg.Server.Route, export.Handle)

	ops := app.Group("/ops")
	ops.Get("/browsers", handlers.HandleBrowserStats(cfg.PDF.Engine, engine))
	ops.Get("/monitor", monitor.New(monitor.Config{Title: "pdf-export"}))
}

func corsExtraHeaders(cfg config.Config) []string {
	if cfg.Auth.Enabled {
		return []string{middleware.APIKeyHeader}
	}
	return nil
}

// newErrorHandler writes the JSON error envelope. It also sets the CORS
// headers, since errors such as an oversized body are raised by the transport
// before the CORS middleware runs.
func newErrorHandler(corsHeaders []string) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code == fiber.StatusRequestEntityTooLarge {
			msg = "HTML content too large"
		}

		logging.Warn("Request failed", "path", c.Path(), "status", code, "reason", msg)
		middleware.SetCORSHeaders(c, corsHeaders...)
		return middleware.ErrorJSON(c, code, msg)
	}
}
