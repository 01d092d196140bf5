package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
)

// errorStatus maps a workflow error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, marketplace.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, marketplace.ErrOrderNotFound),
		errors.Is(err, marketplace.ErrProposalNotFound),
		errors.Is(err, marketplace.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, marketplace.ErrInvalidTransition),
		errors.Is(err, marketplace.ErrProposalClosed),
		errors.Is(err, marketplace.ErrAdvanceNotPaid),
		errors.Is(err, marketplace.ErrRemainingAlreadyPaid),
		errors.Is(err, marketplace.ErrOrderNotDelivered),
		errors.Is(err, marketplace.ErrPaymentStageMismatch):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, marketplace.ErrPaymentDeclined):
		return fiber.StatusPaymentRequired, "payment_declined"
	case errors.Is(err, marketplace.ErrInvalidSignature):
		return fiber.StatusUnauthorized, "invalid_signature"
	default:
		return fiber.StatusInternalServerError, "internal_server_error"
	}
}

// respondError writes err as a JSON error body. Unexpected errors are logged
// and their text is not returned to the caller.
func respondError(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "Something went wrong"
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": message})
}

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": what + " is not configured"})
}

// GetClientIP returns the original caller address, preferring proxy headers
// over the socket peer. IPv4-mapped IPv6 addresses are unwrapped.
func GetClientIP(c *fiber.Ctx) string {
	for _, header := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(c.Get(header)); ip != "" {
			return ip
		}
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		// the first entry is the original client
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
