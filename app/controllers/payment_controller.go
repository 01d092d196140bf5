package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (mc *MarketController) HandleListOrderPayments(c *fiber.Ctx) error {
	if _, err := mc.orderFor(c); err != nil {
		return respondError(c, err)
	}
	payments, err := mc.svc.ListOrderPayments(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleCreateOrderPayment opens a pending payment for one stage of the order.
func (mc *MarketController) HandleCreateOrderPayment(c *fiber.Ctx) error {
	var in marketplace.CreatePaymentInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid payment payload")
	}
	if _, err := mc.orderFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	in.OrderID = c.Params("id")
	payment, err := mc.svc.CreatePayment(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleCreateRemainingPayment opens the remaining-balance payment of a
// delivered order.
func (mc *MarketController) HandleCreateRemainingPayment(c *fiber.Ctx) error {
	if _, err := mc.orderFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	payment, err := mc.svc.CreateRemainingPayment(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandlePayStage charges a stage through the configured gateway. A decline
// answers 402 and leaves a failed payment that a later call retries.
func (mc *MarketController) HandlePayStage(c *fiber.Ctx) error {
	var req payRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid payment payload")
		}
	}
	stage := models.PaymentStage(c.Params("stage"))
	if !stage.IsValid() {
		return badRequest(c, "Unknown payment stage")
	}
	if _, err := mc.orderFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	result, err := mc.svc.PayStage(c.UserContext(), c.Params("id"), stage, req.PaymentMethod)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleListPayments lists the calling client's payments. Admins pass ?client_id=.
func (mc *MarketController) HandleListPayments(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	clientID := uc.UserID
	if uc.IsAdmin {
		clientID = c.Query("client_id")
	}
	payments, err := mc.svc.GetClientPayments(c.UserContext(), clientID, listLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}

// earningsVendor is the caller for everyone but admins, who pass ?vendor_id=.
func earningsVendor(c *fiber.Ctx) string {
	uc := usercontext.GetUserContext(c)
	if uc.IsAdmin {
		return c.Query("vendor_id")
	}
	return uc.UserID
}

func (mc *MarketController) HandleListEarnings(c *fiber.Ctx) error {
	earnings, err := mc.svc.GetEarnings(c.UserContext(), repository.EarningFilter{
		VendorID: earningsVendor(c),
		OrderID:  c.Query("order_id"),
		Status:   c.Query("status"),
		Limit:    listLimit(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"earnings": earnings, "count": len(earnings)})
}

func (mc *MarketController) HandleEarningsSummary(c *fiber.Ctx) error {
	summary, err := mc.svc.EarningsSummary(c.UserContext(), earningsVendor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}
