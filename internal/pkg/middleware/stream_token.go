package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MarketFox/internal/pkg/security"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

// StreamTokenQuery is the query parameter carrying a live stream token.
const StreamTokenQuery = "token"

// StreamToken identifies anonymous requests from a signed ?token= parameter.
// Requests that already carry gateway identity pass through unchanged, as do
// all requests when secret is empty.
func StreamToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query(StreamTokenQuery)
		if secret == "" || token == "" || usercontext.IsLoggedIn(c) {
			return c.Next()
		}
		claims, err := security.VerifyStreamToken(token, secret)
		if err != nil {
			log.Debugf("[Live] Rejected stream token: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid or expired stream token",
			})
		}
		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     claims.UserID,
			Role:       claims.Role,
			IsLoggedIn: true,
			IsAdmin:    claims.Role == usercontext.RoleAdmin,
		})
		return c.Next()
	}
}
