package handlers

import (
	"github.com/gofiber/fiber/v2"

	"pdf-export/internal/infra/browser"
)

// StatsProvider reports browser admission counters.
type StatsProvider interface {
	Stats() browser.Stats
}

// HandleBrowserStats serves the admission gate counters of the active engine.
func HandleBrowserStats(engine string, p StatsProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p == nil {
			return c.JSON(fiber.Map{"engine": engine, "enabled": false})
		}
		return c.JSON(fiber.Map{"engine": engine, "browsers": p.Stats()})
	}
}
