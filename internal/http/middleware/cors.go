package middleware

import (
	"github.com/gofiber/fiber/v2"
)

const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
)

// CORS sets permissive CORS headers on every response and answers OPTIONS
// with an empty 200 before any other middleware runs. extraHeaders are
// appended to Access-Control-Allow-Headers.
func CORS(extraHeaders ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		SetCORSHeaders(c, extraHeaders...)
		if c.Method() == fiber.MethodOptions {
			c.Status(fiber.StatusOK)
			return nil
		}
		return c.Next()
	}
}

// SetCORSHeaders writes the CORS headers without touching status or body. The
// app's error handler uses it for errors raised before any middleware ran.
func SetCORSHeaders(c *fiber.Ctx, extraHeaders ...string) {
	allowHeaders := corsAllowHeaders
	for _, h := range extraHeaders {
		allowHeaders += ", " + h
	}
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, allowHeaders)
}
