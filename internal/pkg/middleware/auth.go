package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

// RequireUser rejects anonymous API requests with JSON 401.
func RequireUser(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "missing " + usercontext.HeaderUserID + " header",
		})
	}
	return c.Next()
}

// RequireAdmin ensures an identified admin; others get JSON 403.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "missing " + usercontext.HeaderUserID + " header",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin role required",
		})
	}
	return c.Next()
}
