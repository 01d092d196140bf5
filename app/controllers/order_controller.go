package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// HandleCreateOrder creates a direct order. The caller is the client unless
// an admin places the order on someone's behalf.
func (mc *MarketController) HandleCreateOrder(c *fiber.Ctx) error {
	var in marketplace.CreateOrderInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid order payload")
	}
	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin {
		in.ClientID = uc.UserID
	}

	order, err := mc.svc.CreateOrder(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleListOrders lists the caller's orders, newest first
func (mc *MarketController) HandleListOrders(c *fiber.Ctx) error {
	clientID, vendorID := scopedParty(c)
	orders, err := mc.svc.ListOrders(c.UserContext(), repository.OrderFilter{
		ClientID: clientID,
		VendorID: vendorID,
		Status:   models.OrderStatus(c.Query("status")),
		Limit:    listLimit(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders, "count": len(orders)})
}

func (mc *MarketController) HandleGetOrder(c *fiber.Ctx) error {
	order, err := mc.orderFor(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// HandleUpdateOrder applies a partial update, including an optional status change.
func (mc *MarketController) HandleUpdateOrder(c *fiber.Ctx) error {
	var patch marketplace.OrderPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest(c, "Invalid order payload")
	}
	if _, err := mc.orderFor(c); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.UpdateOrder(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

func (mc *MarketController) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var req orderStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return badRequest(c, "status is required")
	}
	if _, err := mc.orderFor(c); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.UpdateOrderStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// HandleDeliverOrder records the vendor's delivery
func (mc *MarketController) HandleDeliverOrder(c *fiber.Ctx) error {
	var in marketplace.DeliveryInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid delivery payload")
	}
	if _, err := mc.orderFor(c, partyVendor); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.DeliverOrder(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// HandleAcceptDelivery lets the client accept delivered work
func (mc *MarketController) HandleAcceptDelivery(c *fiber.Ctx) error {
	if _, err := mc.orderFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.AcceptDelivery(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

func (mc *MarketController) HandleCancelOrder(c *fiber.Ctx) error {
	var req cancelRequest
	// an empty body cancels without a reason
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid cancel payload")
		}
	}
	if _, err := mc.orderFor(c); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.CancelOrder(c.UserContext(), c.Params("id"), usercontext.GetUserID(c), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

func (mc *MarketController) HandleListDeliveries(c *fiber.Ctx) error {
	if _, err := mc.orderFor(c); err != nil {
		return respondError(c, err)
	}
	deliveries, err := mc.svc.ListDeliveries(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"deliveries": deliveries})
}
