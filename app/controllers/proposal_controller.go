package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

type changesRequest struct {
	Feedback string `json:"feedback"`
}

// HandleCreateProposal sends a vendor's proposal to a client
func (mc *MarketController) HandleCreateProposal(c *fiber.Ctx) error {
	var in marketplace.CreateProposalInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid proposal payload")
	}
	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin {
		in.VendorID = uc.UserID
	}

	proposal, err := mc.svc.CreateProposal(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(proposal)
}

func (mc *MarketController) HandleListProposals(c *fiber.Ctx) error {
	clientID, vendorID := scopedParty(c)
	proposals, err := mc.svc.ListProposals(c.UserContext(), repository.ProposalFilter{
		ClientID:       clientID,
		VendorID:       vendorID,
		ConversationID: c.Query("conversation_id"),
		OrderID:        c.Query("order_id"),
		Status:         models.ProposalStatus(c.Query("status")),
		Limit:          listLimit(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"proposals": proposals, "count": len(proposals)})
}

func (mc *MarketController) HandleGetProposal(c *fiber.Ctx) error {
	proposal, err := mc.proposalFor(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}

// HandleAcceptProposal turns the proposal into a staged order awaiting its
// advance payment. Only the addressed client may accept.
func (mc *MarketController) HandleAcceptProposal(c *fiber.Ctx) error {
	if _, err := mc.proposalFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	order, err := mc.svc.AcceptProposal(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	advance, err := mc.svc.GetPaymentByOrderID(c.UserContext(), order.ID, models.PaymentStageAdvance)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": order, "payment": advance})
}

func (mc *MarketController) HandleRejectProposal(c *fiber.Ctx) error {
	if _, err := mc.proposalFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	proposal, err := mc.svc.RejectProposal(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}

func (mc *MarketController) HandleRequestProposalChanges(c *fiber.Ctx) error {
	var req changesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid feedback payload")
	}
	if _, err := mc.proposalFor(c, partyClient); err != nil {
		return respondError(c, err)
	}
	proposal, err := mc.svc.RequestProposalChanges(c.UserContext(), c.Params("id"), req.Feedback)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}

// HandleReviseProposal lets the vendor answer requested changes
func (mc *MarketController) HandleReviseProposal(c *fiber.Ctx) error {
	var rev marketplace.ProposalRevision
	if err := c.BodyParser(&rev); err != nil {
		return badRequest(c, "Invalid revision payload")
	}
	if _, err := mc.proposalFor(c, partyVendor); err != nil {
		return respondError(c, err)
	}
	proposal, err := mc.svc.ReviseProposal(c.UserContext(), c.Params("id"), rev)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(proposal)
}
