package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/live"
	"github.com/ManuelReschke/MarketFox/internal/pkg/marketplace"
	metrics "github.com/ManuelReschke/MarketFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/MarketFox/internal/pkg/usercontext"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ============================================================================
// MARKET CONTROLLER - Service + Repository Pattern
// ============================================================================

// MarketController serves the marketplace JSON API. Workflows go through the
// marketplace service; inbox reads go straight to the repositories.
type MarketController struct {
	svc     *marketplace.Service
	repos   *repository.Repositories
	hub     *live.Hub
	counter *metrics.FanoutCounter

	streamSecret string
	streamTTL    time.Duration
}

// ControllerOption configures optional collaborators of a MarketController.
type ControllerOption func(*MarketController)

// WithLiveHub enables the live update stream.
func WithLiveHub(h *live.Hub) ControllerOption {
	return func(mc *MarketController) { mc.hub = h }
}

// WithFanoutCounter exposes the fan-out step counters to admins.
func WithFanoutCounter(c *metrics.FanoutCounter) ControllerOption {
	return func(mc *MarketController) { mc.counter = c }
}

// WithStreamTokens lets callers open the live stream with a signed token
// valid for ttl instead of gateway headers.
func WithStreamTokens(secret string, ttl time.Duration) ControllerOption {
	return func(mc *MarketController) {
		mc.streamSecret = secret
		mc.streamTTL = ttl
	}
}

// NewMarketController creates the controller
func NewMarketController(svc *marketplace.Service, repos *repository.Repositories, opts ...ControllerOption) *MarketController {
	mc := &MarketController{svc: svc, repos: repos}
	for _, opt := range opts {
		opt(mc)
	}
	return mc
}

// party is a side of an order or proposal.
type party int

const (
	partyClient party = iota + 1
	partyVendor
)

var errForbidden = errors.New("caller is not a participant")

// authorize checks that the caller is one of the allowed parties. Admins pass
// every check. An empty allowed list admits both parties.
func authorize(uc usercontext.UserContext, clientID, vendorID string, allowed ...party) error {
	if uc.IsAdmin {
		return nil
	}
	if len(allowed) == 0 {
		allowed = []party{partyClient, partyVendor}
	}
	for _, p := range allowed {
		switch {
		case p == partyClient && uc.UserID == clientID:
			return nil
		case p == partyVendor && uc.UserID == vendorID:
			return nil
		}
	}
	return errForbidden
}

// orderFor loads the order named by the :id param and checks the caller.
func (mc *MarketController) orderFor(c *fiber.Ctx, allowed ...party) (*models.Order, error) {
	order, err := mc.svc.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if err := authorize(usercontext.GetUserContext(c), order.ClientID, order.VendorID, allowed...); err != nil {
		return nil, err
	}
	return order, nil
}

// proposalFor loads the proposal named by the :id param and checks the caller.
func (mc *MarketController) proposalFor(c *fiber.Ctx, allowed ...party) (*models.Proposal, error) {
	proposal, err := mc.svc.GetProposal(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if err := authorize(usercontext.GetUserContext(c), proposal.ClientID, proposal.VendorID, allowed...); err != nil {
		return nil, err
	}
	return proposal, nil
}

// listLimit reads ?limit= and clamps it.
func listLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// scopedParty returns the client and vendor filter for a listing. Clients
// and vendors only see their own side, admins may filter freely.
func scopedParty(c *fiber.Ctx) (clientID, vendorID string) {
	uc := usercontext.GetUserContext(c)
	switch {
	case uc.IsAdmin:
		return c.Query("client_id"), c.Query("vendor_id")
	case uc.Role == usercontext.RoleVendor:
		return "", uc.UserID
	default:
		return uc.UserID, ""
	}
}
