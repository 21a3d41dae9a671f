package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"pdf-export/internal/tokens"
)

// APIKeyHeader carries the API token.
const APIKeyHeader = "X-API-Key"

// LocalsAPIKey is the Locals key holding an authenticated token.
const LocalsAPIKey = "api_key"

// TokenValidator is the subset of tokens.Cache used for authentication.
type TokenValidator interface {
	Ready() bool
	Validate(token string) bool
}

// APIKeyAuth validates X-API-Key against v. Requests without the header stay
// anonymous; OPTIONS is never authenticated.
func APIKeyAuth(v TokenValidator) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + APIKeyHeader,
		ContextKey: LocalsAPIKey,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !v.Ready() {
				return false, tokens.ErrStoreNotReady
			}
			if !v.Validate(key) {
				return false, tokens.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get(APIKeyHeader) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, tokens.ErrStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return ErrorJSON(c, status, err.Error())
		},
	})
}
