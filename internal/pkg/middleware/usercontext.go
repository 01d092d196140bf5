package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

// UserContextMiddleware builds the user context from the identity headers
// the API gateway sets after authenticating the caller. Requests without
// X-User-ID are anonymous.
func UserContextMiddleware(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
	if userID == "" {
		usercontext.SetUserContext(c, usercontext.UserContext{})
		return c.Next()
	}

	role := strings.ToLower(strings.TrimSpace(c.Get(usercontext.HeaderUserRole)))
	switch role {
	case usercontext.RoleClient, usercontext.RoleVendor, usercontext.RoleAdmin:
	default:
		role = usercontext.RoleClient
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:     userID,
		Role:       role,
		IsLoggedIn: true,
		IsAdmin:    role == usercontext.RoleAdmin,
	})
	return c.Next()
}
