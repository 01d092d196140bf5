package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Dispatcher turns domain events into notifications, activity entries and
// chat messages. Steps run independently: a failing step is logged and
// recorded, and the remaining steps still run.
type Dispatcher struct {
	notifications NotificationSink
	activities    ActivitySink
	chat          ChatSink
	recorder      Recorder
}

// NewDispatcher wires the sinks. A nil recorder discards step outcomes.
func NewDispatcher(notifications NotificationSink, activities ActivitySink, chat ChatSink, recorder Recorder) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		notifications: notifications,
		activities:    activities,
		chat:          chat,
		recorder:      recorder,
	}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Handle runs every fan-out step of ev. It fails only when all steps failed,
// so a retried event never duplicates records that were already written.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) error {
	steps := d.plan(ev)
	if len(steps) == 0 {
		log.Debugf("[Dispatcher] No fan-out for %s (%s)", ev.Type, ev.ID)
		return nil
	}

	var errs []error
	for _, s := range steps {
		err := runStep(ctx, s)
		d.recorder.RecordStep(ctx, ev.Type, s.name, err)
		if err != nil {
			log.Errorf("[Dispatcher] %s step %s failed (event=%s order=%s proposal=%s payment=%s): %v",
				ev.Type, s.name, ev.ID, ev.OrderID, ev.ProposalID, ev.PaymentID, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if len(errs) == len(steps) {
		return fmt.Errorf("dispatch %s: every fan-out step failed: %w", ev.Type, errors.Join(errs...))
	}
	return nil
}

func runStep(ctx context.Context, s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.run(ctx)
}

func (d *Dispatcher) plan(ev Event) []step {
	switch ev.Type {
	case OrderCreated:
		return d.collect(
			d.notify(ev.VendorID, models.NotificationNewOrder, "New Order Received",
				fmt.Sprintf("You received a new order for %s", serviceLabel(ev)), metadata(ev, "")),
			d.systemMessage(ev, "Client placed a new order"),
			d.activityPair(ev,
				"Order Placed", fmt.Sprintf("You placed an order for %s", serviceLabel(ev)),
				"New Order", fmt.Sprintf("New order received for %s", serviceLabel(ev))),
		)
	case OrderDelivered:
		return d.collect(
			d.deliveryMessage(ev),
			d.notify(ev.ClientID, models.NotificationOrderDelivered, "Order Delivered",
				fmt.Sprintf("Your order for %s has been delivered", serviceLabel(ev)), metadata(ev, models.DeliveryFocus)),
			d.activityPair(ev,
				"Delivery Received", fmt.Sprintf("The vendor delivered your order for %s", serviceLabel(ev)),
				"Work Delivered", fmt.Sprintf("You delivered the order for %s", serviceLabel(ev))),
		)
	case OrderDeliveryAccepted:
		return d.collect(
			d.activityPair(ev,
				"Delivery Accepted", fmt.Sprintf("You accepted the delivery for %s", serviceLabel(ev)),
				"Delivery Accepted", fmt.Sprintf("The client accepted your delivery for %s", serviceLabel(ev))),
		)
	case OrderCancelled:
		counterparty := ev.VendorID
		if ev.ActorID == ev.VendorID {
			counterparty = ev.ClientID
		}
		message := fmt.Sprintf("The order for %s was cancelled", serviceLabel(ev))
		if ev.Reason != "" {
			message += ": " + ev.Reason
		}
		return d.collect(
			d.notify(counterparty, models.NotificationOrderCancelled, "Order Cancelled", message, metadata(ev, "")),
			d.systemMessage(ev, "🚫 "+message),
			d.activityPair(ev, "Order Cancelled", message, "Order Cancelled", message),
		)
	case ProposalCreated:
		return d.collect(
			d.notify(ev.ClientID, models.NotificationProposalReceived, "New Proposal",
				fmt.Sprintf("You received a proposal: %s (%s)", ev.Title, formatAmount(ev)), metadata(ev, models.ProposalFocus(ev.ProposalID))),
			d.activityPair(ev,
				"Proposal Received", fmt.Sprintf("You received the proposal %q", ev.Title),
				"Proposal Sent", fmt.Sprintf("You sent the proposal %q", ev.Title)),
		)
	case ProposalAccepted:
		return d.collect(
			d.systemMessage(ev, fmt.Sprintf("✅ Client accepted the proposal %q. Advance payment of %s is now due.", ev.Title, formatAmount(ev))),
			d.notify(ev.VendorID, models.NotificationProposalAccepted, "Proposal Accepted",
				fmt.Sprintf("Your proposal %q was accepted", ev.Title), metadata(ev, models.ProposalFocus(ev.ProposalID))),
			d.activityPair(ev,
				"Proposal Accepted", fmt.Sprintf("You accepted the proposal %q", ev.Title),
				"Proposal Accepted", fmt.Sprintf("Your proposal %q was accepted", ev.Title)),
		)
	case ProposalRejected:
		return d.collect(
			d.systemMessage(ev, "❌ Client rejected the proposal"),
			d.notify(ev.VendorID, models.NotificationProposalRejected, "Proposal Rejected",
				fmt.Sprintf("Your proposal %q was rejected", ev.Title), metadata(ev, models.ProposalFocus(ev.ProposalID))),
			d.activityPair(ev,
				"Proposal Rejected", fmt.Sprintf("You rejected the proposal %q", ev.Title),
				"Proposal Rejected", fmt.Sprintf("Your proposal %q was rejected", ev.Title)),
		)
	case ProposalChangesRequested:
		text := "🔄 Client requested changes to the proposal"
		if ev.Feedback != "" {
			text += ": " + ev.Feedback
		}
		return d.collect(
			d.systemMessage(ev, text),
			d.notify(ev.VendorID, models.NotificationProposalChangesRequested, "Changes Requested",
				fmt.Sprintf("The client requested changes to %q", ev.Title), metadata(ev, models.ProposalFocus(ev.ProposalID))),
			d.activityPair(ev,
				"Changes Requested", fmt.Sprintf("You requested changes to %q", ev.Title),
				"Changes Requested", fmt.Sprintf("The client requested changes to %q", ev.Title)),
		)
	case ProposalRevised:
		return d.collect(
			d.systemMessage(ev, fmt.Sprintf("✏️ Vendor revised the proposal %q (%s)", ev.Title, formatAmount(ev))),
			d.notify(ev.ClientID, models.NotificationProposalRevised, "Proposal Revised",
				fmt.Sprintf("The proposal %q was revised", ev.Title), metadata(ev, models.ProposalFocus(ev.ProposalID))),
			d.activityPair(ev,
				"Proposal Revised", fmt.Sprintf("The vendor revised %q", ev.Title),
				"Proposal Revised", fmt.Sprintf("You revised %q", ev.Title)),
		)
	case PaymentInitiated:
		return d.collect(
			d.notify(ev.VendorID, models.NotificationPaymentInitiated, "Payment Initiated",
				fmt.Sprintf("A %s payment of %s was initiated", ev.Stage, formatAmount(ev)), metadata(ev, "")),
		)
	case PaymentFinalized:
		kind, title, text := finalizedCopy(ev)
		return d.collect(
			d.systemMessage(ev, text),
			d.notify(ev.VendorID, kind, title, text, metadata(ev, "")),
			d.notify(ev.ClientID, models.NotificationPaymentSuccess, "Payment Successful",
				fmt.Sprintf("Your %s payment of %s was successful", ev.Stage, formatAmount(ev)), metadata(ev, "")),
			d.activityPair(ev,
				"Payment Made", fmt.Sprintf("You paid %s (%s)", formatAmount(ev), ev.Stage),
				"Payment Received", fmt.Sprintf("You received %s (%s)", formatAmount(ev), ev.Stage)),
		)
	case PaymentFailed:
		message := fmt.Sprintf("Your %s payment of %s failed", ev.Stage, formatAmount(ev))
		if ev.Reason != "" {
			message += ": " + ev.Reason
		}
		return d.collect(
			d.notify(ev.ClientID, models.NotificationPaymentFailed, "Payment Failed", message, metadata(ev, "")),
		)
	default:
		return nil
	}
}

// collect drops steps that do not apply to the event.
func (d *Dispatcher) collect(steps ...*step) []step {
	out := make([]step, 0, len(steps))
	for _, s := range steps {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (d *Dispatcher) notify(userID, kind, title, message string, meta models.NotificationMetadata) *step {
	if d.notifications == nil || userID == "" {
		return nil
	}
	return &step{
		name: "notify:" + kind,
		run: func(ctx context.Context) error {
			_, err := d.notifications.Emit(ctx, userID, kind, title, message, meta)
			return err
		},
	}
}

func (d *Dispatcher) systemMessage(ev Event, text string) *step {
	if d.chat == nil || ev.ConversationID == "" {
		return nil
	}
	return &step{
		name: "chat",
		run: func(ctx context.Context) error {
			return d.chat.PostMessage(ctx, &models.Message{
				ConversationID: ev.ConversationID,
				SenderID:       models.SystemSenderID,
				Type:           models.MessageTypeSystem,
				Text:           text,
				OrderID:        ev.OrderID,
				ProposalID:     ev.ProposalID,
			}, text)
		},
	}
}

func (d *Dispatcher) deliveryMessage(ev Event) *step {
	if d.chat == nil || ev.ConversationID == "" {
		return nil
	}
	return &step{
		name: "chat",
		run: func(ctx context.Context) error {
			return d.chat.PostMessage(ctx, &models.Message{
				ConversationID: ev.ConversationID,
				SenderID:       ev.VendorID,
				Type:           models.MessageTypeWorkDelivered,
				Text:           ev.Message,
				Attachments:    ev.Attachments,
				OrderID:        ev.OrderID,
			}, WorkDeliveredPreview)
		},
	}
}

func (d *Dispatcher) activityPair(ev Event, clientTitle, clientText, vendorTitle, vendorText string) *step {
	if d.activities == nil {
		return nil
	}
	meta := models.ActivityMetadata{
		OrderID:    ev.OrderID,
		ProposalID: ev.ProposalID,
		PaymentID:  ev.PaymentID,
		Stage:      string(ev.Stage),
	}
	if !ev.Amount.IsZero() {
		meta.Amount = ev.Amount.StringFixed(2)
	}
	var entries []models.Activity
	if ev.ClientID != "" {
		entries = append(entries, models.Activity{
			UserID: ev.ClientID, Role: models.ActivityRoleClient, Type: string(ev.Type),
			Title: clientTitle, Description: clientText, Metadata: meta,
		})
	}
	if ev.VendorID != "" {
		entries = append(entries, models.Activity{
			UserID: ev.VendorID, Role: models.ActivityRoleVendor, Type: string(ev.Type),
			Title: vendorTitle, Description: vendorText, Metadata: meta,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return &step{
		name: "activity",
		run: func(ctx context.Context) error {
			return d.activities.Record(ctx, entries...)
		},
	}
}
