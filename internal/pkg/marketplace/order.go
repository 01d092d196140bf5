package marketplace

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
	"github.com/ManuelReschke/MarketFox/internal/pkg/money"
)

// CreateOrderInput is what a client supplies when buying a service directly.
type CreateOrderInput struct {
	ClientID       string             `json:"client_id" validate:"required,max=64"`
	VendorID       string             `json:"vendor_id" validate:"required,max=64"`
	ServiceID      string             `json:"service_id" validate:"required,max=64"`
	ServiceName    string             `json:"service_name" validate:"max=255"`
	ConversationID string             `json:"conversation_id" validate:"max=36"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	Currency       string             `json:"currency" validate:"omitempty,len=3"`
	Status         models.OrderStatus `json:"status"`
	Requirements   string             `json:"requirements"`
	DeliveryDueAt  *time.Time         `json:"delivery_due_at"`
}

// OrderPatch lists the order fields a caller may change. Nil fields are kept.
type OrderPatch struct {
	Status         *models.OrderStatus `json:"status"`
	ServiceName    *string             `json:"service_name"`
	Requirements   *string             `json:"requirements"`
	ConversationID *string             `json:"conversation_id"`
	DeliveryDueAt  *time.Time          `json:"delivery_due_at"`
}

// DeliveryInput is a vendor's work submission. FileURL is the legacy single
// attachment form and is folded into Attachments.
type DeliveryInput struct {
	Message     string              `json:"message"`
	Attachments []models.Attachment `json:"attachments"`
	FileURL     string              `json:"file_url"`
}

// initialOrderStatuses are the states an order may be created in.
var initialOrderStatuses = map[models.OrderStatus]bool{
	models.OrderStatusPending:         true,
	models.OrderStatusPendingPayment:  true,
	models.OrderStatusAwaitingPayment: true,
}

// CreateOrder persists a new order and announces it to the vendor.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if !money.IsPositive(in.TotalAmount) {
		return nil, invalidInput("total_amount must be positive")
	}
	status := in.Status
	if status == "" {
		status = models.OrderStatusPending
	}
	if !initialOrderStatuses[status] {
		return nil, invalidInput("orders cannot start in status %q", status)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.settings().GetDefaultCurrency()
	}

	order := &models.Order{
		ClientID:       in.ClientID,
		VendorID:       in.VendorID,
		ServiceID:      in.ServiceID,
		ServiceName:    in.ServiceName,
		ConversationID: in.ConversationID,
		Status:         status,
		PaymentStatus:  models.OrderPaymentUnpaid,
		Currency:       currency,
		TotalAmount:    money.Cents(in.TotalAmount),
		Requirements:   in.Requirements,
		DeliveryDueAt:  in.DeliveryDueAt,
	}
	if err := s.repos.Order.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Infof("[Marketplace] Order %s created by client %s for vendor %s (%s %s)",
		order.ID, order.ClientID, order.VendorID, order.Currency, order.TotalAmount.StringFixed(2))

	if order.ConversationID == "" {
		if convID := s.openConversation(ctx, order.ClientID, order.VendorID, order.ID); convID != "" {
			if err := s.repos.Order.Update(ctx, order.ID, &models.Order{ConversationID: convID}, "conversation_id"); err != nil {
				log.Warnf("[Marketplace] Could not link conversation %s to order %s: %v", convID, order.ID, err)
			} else {
				order.ConversationID = convID
			}
		}
	}

	ev := orderEvent(events.OrderCreated, order)
	ev.ActorID = order.ClientID
	ev.Amount = order.TotalAmount
	s.publish(ctx, ev)
	return order, nil
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound, "get order")
	}
	return order, nil
}

// ListOrders returns orders newest first.
func (s *Service) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]models.Order, error) {
	return s.repos.Order.List(ctx, filter)
}

// UpdateOrderStatus moves an order to status if the transition table allows it.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	return s.UpdateOrder(ctx, orderID, OrderPatch{Status: &status})
}

// UpdateOrder applies patch. A status change is checked against the
// transition table, may not take over a payment or delivery step and is only
// written while the order still has the status it was read with.
func (s *Service) UpdateOrder(ctx context.Context, orderID string, patch OrderPatch) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	changes := &models.Order{}
	var columns []string
	if patch.ServiceName != nil {
		changes.ServiceName = *patch.ServiceName
		columns = append(columns, "service_name")
	}
	if patch.Requirements != nil {
		changes.Requirements = *patch.Requirements
		columns = append(columns, "requirements")
	}
	if patch.ConversationID != nil {
		changes.ConversationID = *patch.ConversationID
		columns = append(columns, "conversation_id")
	}
	if patch.DeliveryDueAt != nil {
		changes.DeliveryDueAt = patch.DeliveryDueAt
		columns = append(columns, "delivery_due_at")
	}

	if patch.Status == nil {
		if len(columns) == 0 {
			return order, nil
		}
		if err := s.repos.Order.Update(ctx, orderID, changes, columns...); err != nil {
			return nil, notFound(err, ErrOrderNotFound, "update order")
		}
		return s.GetOrder(ctx, orderID)
	}

	next := *patch.Status
	if !next.IsValid() {
		return nil, invalidInput("unknown order status %q", next)
	}
	if !order.Status.CanTransitionTo(next) || !manualStatusAllowed(order, next) {
		return nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(next)}
	}
	changes.Status = next
	columns = append(columns, "status")
	now := s.now()
	switch next {
	case models.OrderStatusCompleted:
		changes.CompletedAt = &now
		columns = append(columns, "completed_at")
	case models.OrderStatusCancelled:
		changes.CancelledAt = &now
		columns = append(columns, "cancelled_at")
	}

	if err := s.updateOrderFrom(ctx, order, changes, columns...); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// manualStatusAllowed guards the moves that belong to the payment and
// delivery workflows. Work on an order waiting for its payment starts only
// when the payment settles, an order completes by hand only once it is paid
// in full, and awaiting_remaining_payment is reached by accepting a delivery.
func manualStatusAllowed(order *models.Order, next models.OrderStatus) bool {
	switch next {
	case models.OrderStatusInProgress:
		if order.Status == models.OrderStatusAwaitingPayment {
			return false
		}
		return !order.IsStaged() || order.PaidAdvance
	case models.OrderStatusCompleted:
		if order.IsStaged() {
			return order.PaidRemaining
		}
		return order.PaymentStatus == models.OrderPaymentPaid
	case models.OrderStatusAwaitingRemainingPayment:
		return false
	}
	return true
}

// updateOrderFrom writes changes only while the order still has the status
// it was read with. Losing that race is reported as an invalid transition.
func (s *Service) updateOrderFrom(ctx context.Context, order *models.Order, changes *models.Order, columns ...string) error {
	ok, err := s.repos.Order.UpdateIfStatus(ctx, order.ID, []models.OrderStatus{order.Status}, changes, columns...)
	if err != nil {
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	if !ok {
		return fmt.Errorf("order %s changed concurrently: %w", order.ID, ErrInvalidTransition)
	}
	return nil
}

// DeliverOrder records a vendor's submission and marks the order delivered.
func (s *Service) DeliverOrder(ctx context.Context, orderID string, in DeliveryInput) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(models.OrderStatusDelivered) {
		return nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(models.OrderStatusDelivered)}
	}

	attachments := NormalizeAttachments(in.Attachments, in.FileURL)
	delivery := &models.Delivery{
		OrderID:     order.ID,
		VendorID:    order.VendorID,
		ClientID:    order.ClientID,
		Message:     in.Message,
		Attachments: attachments,
	}
	if err := s.repos.Delivery.Create(ctx, delivery); err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}

	changes := &models.Order{
		Status: models.OrderStatusDelivered,
		DeliveryDetails: &models.DeliveryDetails{
			Message:     in.Message,
			Attachments: attachments,
			DeliveredAt: s.now(),
		},
	}
	if err := s.updateOrderFrom(ctx, order, changes, "status", "delivery_details"); err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Order %s delivered with %d attachment(s)", order.ID, len(attachments))

	ev := orderEvent(events.OrderDelivered, order)
	ev.ActorID = order.VendorID
	ev.OrderStatus = models.OrderStatusDelivered
	ev.Message = in.Message
	ev.Attachments = attachments
	s.publish(ctx, ev)

	return s.GetOrder(ctx, orderID)
}

// AcceptDelivery records the client's approval of delivered work. Staged
// orders get their remaining payment seeded and wait for it; fully paid
// orders complete right away.
func (s *Service) AcceptDelivery(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(models.OrderStatusAwaitingRemainingPayment)}
	}

	now := s.now()
	changes := &models.Order{AcceptedAt: &now}
	columns := []string{"accepted_at", "status"}

	switch {
	case order.IsStaged() && order.RemainingAmount.IsPositive():
		if _, err := s.CreateRemainingPayment(ctx, order.ID); err != nil {
			return nil, err
		}
		changes.Status = models.OrderStatusAwaitingRemainingPayment
	case order.PaymentStatus == models.OrderPaymentPaid || (order.IsStaged() && order.PaidAdvance):
		changes.Status = models.OrderStatusCompleted
		changes.CompletedAt = &now
		columns = append(columns, "completed_at")
		if order.IsStaged() {
			changes.PaidRemaining = true
			changes.PaymentPhase = models.PaymentPhasePaidFull
			changes.PaymentStatus = models.OrderPaymentPaid
			columns = append(columns, "paid_remaining", "payment_stage", "payment_status")
		}
	default:
		changes.Status = models.OrderStatusAwaitingRemainingPayment
	}

	if err := s.updateOrderFrom(ctx, order, changes, columns...); err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Delivery of order %s accepted, now %s", order.ID, changes.Status)

	ev := orderEvent(events.OrderDeliveryAccepted, order)
	ev.ActorID = order.ClientID
	ev.OrderStatus = changes.Status
	s.publish(ctx, ev)

	return s.GetOrder(ctx, orderID)
}

// CancelOrder cancels a non-terminal order. actorID, when given, must be the
// client or the vendor of the order.
func (s *Service) CancelOrder(ctx context.Context, orderID, actorID, reason string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && !order.IsParticipant(actorID) {
		return nil, invalidInput("user %s is not a participant of order %s", actorID, orderID)
	}
	if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
		return nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(models.OrderStatusCancelled)}
	}

	now := s.now()
	reason = strings.TrimSpace(reason)
	changes := &models.Order{Status: models.OrderStatusCancelled, CancelledAt: &now, CancelReason: reason}
	if err := s.updateOrderFrom(ctx, order, changes, "status", "cancelled_at", "cancel_reason"); err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Order %s cancelled by %s", order.ID, actorID)

	ev := orderEvent(events.OrderCancelled, order)
	ev.ActorID = actorID
	ev.OrderStatus = models.OrderStatusCancelled
	ev.Reason = reason
	s.publish(ctx, ev)

	return s.GetOrder(ctx, orderID)
}

// ListDeliveries returns the submissions of an order, oldest first.
func (s *Service) ListDeliveries(ctx context.Context, orderID string) ([]models.Delivery, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repos.Delivery.ListByOrder(ctx, orderID)
}

// NormalizeAttachments returns the attachment list of a delivery. A legacy
// single fileURL becomes a one-element list; entries without a URL are dropped.
func NormalizeAttachments(attachments []models.Attachment, fileURL string) []models.Attachment {
	out := make([]models.Attachment, 0, len(attachments)+1)
	for _, a := range attachments {
		a.URL = strings.TrimSpace(a.URL)
		if a.URL == "" {
			continue
		}
		if a.Name == "" {
			a.Name = path.Base(a.URL)
		}
		out = append(out, a)
	}
	if fileURL = strings.TrimSpace(fileURL); fileURL != "" && len(out) == 0 {
		out = append(out, models.Attachment{Name: path.Base(fileURL), URL: fileURL, Type: "file"})
	}
	return out
}

func orderEvent(t events.Type, order *models.Order) events.Event {
	ev := events.New(t)
	ev.OrderID = order.ID
	ev.ProposalID = derefStr(order.ProposalID)
	ev.ConversationID = order.ConversationID
	ev.ClientID = order.ClientID
	ev.VendorID = order.VendorID
	ev.ServiceName = order.ServiceName
	ev.OrderStatus = order.Status
	ev.Currency = order.Currency
	return ev
}
