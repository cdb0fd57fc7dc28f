package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/JAY4T/kaakazini/internal/utils"
)

const AccessCookie = "access_token"

// BearerToken returns the access token from the Authorization header,
// falling back to the access_token cookie.
func BearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return c.Cookies(AccessCookie)
}

// JWT validates the access token and stores its claims in locals.
func JWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := BearerToken(c)
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication credentials were not provided")
		}

		claims, err := utils.ParseJWT(secret, tokenStr, utils.TokenAccess)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// OptionalJWT attaches claims when a valid token is present and never rejects.
func OptionalJWT(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenStr := BearerToken(c); tokenStr != "" {
			if claims, err := utils.ParseJWT(secret, tokenStr, utils.TokenAccess); err == nil {
				c.Locals("claims", claims)
			}
		}
		return c.Next()
	}
}
