package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/app/controllers"
	"github.com/ManuelReschke/MarketFox/internal/pkg/constants"
	"github.com/ManuelReschke/MarketFox/internal/pkg/middleware"
	"github.com/ManuelReschke/MarketFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	controller *controllers.MarketController
	limiter    fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	rateLimit := h.limiter
	if rateLimit == nil {
		rateLimit = ratelimit.New(ratelimit.Config{})
	}

	api := app.Group(constants.APIRoute, rateLimit, middleware.UserContextMiddleware)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIv1Route)
	mc := h.controller
	auth := middleware.RequireUser

	// gateway callbacks authenticate by signature, not by caller identity
	v1.Post(constants.PaymentWebhookRoute, mc.HandlePaymentWebhook)

	// orders
	v1.Post(constants.OrdersRoute, auth, mc.HandleCreateOrder)
	v1.Get(constants.OrdersRoute, auth, mc.HandleListOrders)
	v1.Get(constants.OrderRoute, auth, mc.HandleGetOrder)
	v1.Patch(constants.OrderRoute, auth, mc.HandleUpdateOrder)
	v1.Patch(constants.OrderStatusRoute, auth, mc.HandleUpdateOrderStatus)
	v1.Post(constants.OrderDeliverRoute, auth, mc.HandleDeliverOrder)
	v1.Post(constants.OrderAcceptRoute, auth, mc.HandleAcceptDelivery)
	v1.Post(constants.OrderCancelRoute, auth, mc.HandleCancelOrder)
	v1.Get(constants.OrderDeliveries, auth, mc.HandleListDeliveries)
	v1.Get(constants.OrderPaymentsRoute, auth, mc.HandleListOrderPayments)
	v1.Post(constants.OrderRemainingPay, auth, mc.HandleCreateRemainingPayment)
	v1.Post(constants.OrderPayStageRoute, auth, mc.HandlePayStage)
	v1.Post(constants.OrderPaymentsRoute, auth, mc.HandleCreateOrderPayment)

	// proposals
	v1.Post(constants.ProposalsRoute, auth, mc.HandleCreateProposal)
	v1.Get(constants.ProposalsRoute, auth, mc.HandleListProposals)
	v1.Get(constants.ProposalRoute, auth, mc.HandleGetProposal)
	v1.Post(constants.ProposalAcceptRoute, auth, mc.HandleAcceptProposal)
	v1.Post(constants.ProposalRejectRoute, auth, mc.HandleRejectProposal)
	v1.Post(constants.ProposalRequestChangesRoute, auth, mc.HandleRequestProposalChanges)
	v1.Post(constants.ProposalReviseRoute, auth, mc.HandleReviseProposal)

	// money
	v1.Get(constants.PaymentsRoute, auth, mc.HandleListPayments)
	v1.Get(constants.EarningsSummaryRoute, auth, mc.HandleEarningsSummary)
	v1.Get(constants.EarningsRoute, auth, mc.HandleListEarnings)

	// inbox
	v1.Get(constants.NotificationsRoute, auth, mc.HandleListNotifications)
	v1.Post(constants.NotificationsReadAllRoute, auth, mc.HandleMarkAllNotificationsRead)
	v1.Post(constants.NotificationReadRoute, auth, mc.HandleMarkNotificationRead)
	v1.Get(constants.ActivitiesRoute, auth, mc.HandleListActivities)
	v1.Get(constants.ConversationMessagesRoute, auth, mc.HandleListConversationMessages)
	v1.Post(constants.LiveTokenRoute, auth, mc.HandleIssueLiveToken)
	v1.Get(constants.LiveRoute, mc.LiveTokenAuth(), auth, mc.HandleLive)

	// admin
	v1.Get(constants.AdminFanoutStatsRoute, middleware.RequireAdmin, mc.HandleAdminFanoutStats)
	v1.Get(constants.AdminQueueStatsRoute, middleware.RequireAdmin, mc.HandleAdminQueueStats)
	v1.Get(constants.AdminSettingsRoute, middleware.RequireAdmin, mc.HandleAdminGetSettings)
	v1.Put(constants.AdminSettingsRoute, middleware.RequireAdmin, mc.HandleAdminUpdateSettings)
}

// NewApiRouter creates the API router. A nil limiter falls back to an
// in-memory limiter with default budget.
func NewApiRouter(mc *controllers.MarketController, limiter fiber.Handler) *ApiRouter {
	return &ApiRouter{controller: mc, limiter: limiter}
}
