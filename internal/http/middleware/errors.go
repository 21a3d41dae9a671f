package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorJSON writes the error envelope used outside the export route:
// {"error": {"code": ..., "message": ...}}.
func ErrorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    status,
			"message": msg,
		},
	})
}
