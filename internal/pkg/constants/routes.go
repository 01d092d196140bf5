package constants

// API route constants
const (
	APIRoute   = "/api"
	APIv1Route = "/v1"

	HealthRoute = "/health"
	DocsRoute   = "/docs/api/"

	OrdersRoute        = "/orders"
	OrderRoute         = "/orders/:id"
	OrderStatusRoute   = "/orders/:id/status"
	OrderDeliverRoute  = "/orders/:id/deliver"
	OrderAcceptRoute   = "/orders/:id/accept-delivery"
	OrderCancelRoute   = "/orders/:id/cancel"
	OrderPaymentsRoute = "/orders/:id/payments"
	OrderRemainingPay  = "/orders/:id/payments/remaining"
	OrderPayStageRoute = "/orders/:id/payments/:stage/pay"
	OrderDeliveries    = "/orders/:id/deliveries"

	ProposalsRoute              = "/proposals"
	ProposalRoute               = "/proposals/:id"
	ProposalAcceptRoute         = "/proposals/:id/accept"
	ProposalRejectRoute         = "/proposals/:id/reject"
	ProposalRequestChangesRoute = "/proposals/:id/request-changes"
	ProposalReviseRoute         = "/proposals/:id/revise"

	PaymentsRoute        = "/payments"
	EarningsRoute        = "/earnings"
	EarningsSummaryRoute = "/earnings/summary"

	NotificationsRoute        = "/notifications"
	NotificationReadRoute     = "/notifications/:id/read"
	NotificationsReadAllRoute = "/notifications/read-all"
	ActivitiesRoute           = "/activities"
	ConversationMessagesRoute = "/conversations/:id/messages"
	LiveRoute                 = "/live"
	LiveTokenRoute            = "/live/token"

	PaymentWebhookRoute = "/webhooks/payments"

	AdminFanoutStatsRoute = "/admin/fanout-stats"
	AdminQueueStatsRoute  = "/admin/queue-stats"
	AdminSettingsRoute    = "/admin/settings"
)

// Header carrying the gateway webhook signature
const WebhookSignatureHeader = "X-Signature"
