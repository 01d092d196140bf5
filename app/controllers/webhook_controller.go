package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
)

// HandlePaymentWebhook receives gateway callbacks. The raw body is verified
// against the X-Signature header before anything is applied. Redelivered
// events answer 200 without side effects so the gateway stops retrying.
func (mc *MarketController) HandlePaymentWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	outcome, err := mc.svc.HandlePaymentWebhook(c.UserContext(), payload, c.Get(constants.WebhookSignatureHeader))
	if err != nil {
		if errors.Is(err, marketplace.ErrInvalidSignature) {
			log.Warnf("[Webhook] Rejected payment webhook from %s: invalid signature", GetClientIP(c))
		}
		return respondError(c, err)
	}

	status := "processed"
	if outcome.Duplicate {
		status = "duplicate"
	}
	response := fiber.Map{"status": status, "event_id": outcome.EventID}
	if outcome.Result != nil {
		response["order"] = outcome.Result.Order
		response["payment"] = outcome.Result.Payment
	} else if outcome.Payment != nil {
		response["payment"] = outcome.Payment
	}
	return c.JSON(response)
}
