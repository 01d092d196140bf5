package events

import (
	"fmt"

	"github.com/ManuelReschke/MarketFox/app/models"
)

// WorkDeliveredPreview is the conversation preview of a delivery message.
const WorkDeliveredPreview = "📦 Work Delivered"

func serviceLabel(ev Event) string {
	if ev.ServiceName != "" {
		return ev.ServiceName
	}
	if ev.Title != "" {
		return ev.Title
	}
	return "your service"
}

func formatAmount(ev Event) string {
	amount := ev.Amount.StringFixed(2)
	if ev.Currency == "" {
		return amount
	}
	return ev.Currency + " " + amount
}

func metadata(ev Event, focus string) models.NotificationMetadata {
	meta := models.NotificationMetadata{
		OrderID:        ev.OrderID,
		ProposalID:     ev.ProposalID,
		ConversationID: ev.ConversationID,
		PaymentID:      ev.PaymentID,
		Stage:          string(ev.Stage),
		Feedback:       ev.Feedback,
		Link:           models.DeepLink(ev.ConversationID, ev.OrderID, focus),
	}
	if !ev.Amount.IsZero() {
		meta.Amount = ev.Amount.StringFixed(2)
	}
	return meta
}

// finalizedCopy returns the vendor notification type, its title and the
// chat text for a finalized payment of the event's stage.
func finalizedCopy(ev Event) (kind, title, text string) {
	switch ev.Stage {
	case models.PaymentStageAdvance:
		return models.NotificationAdvancePaid, "Advance Payment Received",
			fmt.Sprintf("💰 Advance payment of %s received. Work can begin.", formatAmount(ev))
	case models.PaymentStageRemaining:
		return models.NotificationPaymentCompleted, "Order Fully Paid",
			fmt.Sprintf("🎉 Remaining payment of %s received. The order is complete.", formatAmount(ev))
	default:
		return models.NotificationPaymentReceived, "Payment Received",
			fmt.Sprintf("💰 Payment of %s received.", formatAmount(ev))
	}
}
