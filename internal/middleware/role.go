package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JAY4T/kaakazini/internal/models"
)

// RequireRoles must run after AttachJWTLocals.
func RequireRoles(allowed ...models.Role) fiber.Handler {
	allowedSet := map[models.Role]bool{}
	for _, r := range allowed {
		allowedSet[r] = true
	}

	return func(c *fiber.Ctx) error {
		role := Role(c)
		if role == "" {
			return fiber.ErrUnauthorized
		}
		if !allowedSet[role] {
			return fiber.NewError(fiber.StatusForbidden, "forbidden: insufficient role")
		}
		return c.Next()
	}
}
