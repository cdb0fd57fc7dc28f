package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/utils"
)

// AttachJWTLocals copies the user id and role out of the claims so handlers
// read plain locals.
func AttachJWTLocals() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*utils.Claims)
		if !ok || claims == nil {
			return fiber.ErrUnauthorized
		}

		uid, err := uuid.Parse(strings.TrimSpace(claims.UserID))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid user id")
		}

		c.Locals("userId", uid)
		c.Locals("role", models.Role(strings.ToLower(strings.TrimSpace(claims.Role))))
		return c.Next()
	}
}

// UserID returns the authenticated user's id, or uuid.Nil.
func UserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals("userId").(uuid.UUID)
	return id
}

func Role(c *fiber.Ctx) models.Role {
	r, _ := c.Locals("role").(models.Role)
	return r
}

// Authenticated is JWT followed by AttachJWTLocals as one handler.
func Authenticated(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := BearerToken(c)
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication credentials were not provided")
		}
		claims, err := utils.ParseJWT(secret, tokenStr, utils.TokenAccess)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		uid, err := uuid.Parse(strings.TrimSpace(claims.UserID))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid user id")
		}
		c.Locals("claims", claims)
		c.Locals("userId", uid)
		c.Locals("role", models.Role(strings.ToLower(strings.TrimSpace(claims.Role))))
		return c.Next()
	}
}
