package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/app/repository"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
	"github.com/ManuelReschke/MarketFox/internal/pkg/money"
)

// CreatePaymentInput describes a payable stage of an order. Empty party and
// amount fields are taken from the order.
type CreatePaymentInput struct {
	OrderID       string              `json:"order_id" validate:"required,max=36"`
	ProposalID    string              `json:"proposal_id" validate:"max=36"`
	ClientID      string              `json:"client_id" validate:"max=64"`
	VendorID      string              `json:"vendor_id" validate:"max=64"`
	ServiceID     string              `json:"service_id" validate:"max=64"`
	Amount        decimal.Decimal     `json:"amount"`
	Stage         models.PaymentStage `json:"stage"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod string              `json:"payment_method" validate:"max=32"`
}

// FinalizeResult is the committed state after a successful payment.
// AlreadyProcessed is set when the payment had been finalized before and
// nothing was written.
type FinalizeResult struct {
	Order            *models.Order   `json:"order"`
	Payment          *models.Payment `json:"payment"`
	Earning          *models.Earning `json:"earning"`
	AlreadyProcessed bool            `json:"already_processed"`
}

// CreatePayment opens a pending payment for one stage of an order. An
// existing pending payment of the same stage is returned instead of a new one.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	stage := in.Stage
	if stage == "" {
		stage = models.PaymentStageFull
	}
	if !stage.IsValid() {
		return nil, invalidInput("unknown payment stage %q", stage)
	}
	if in.Amount.IsNegative() {
		return nil, invalidInput("amount must not be negative")
	}

	order, err := s.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	if err := stagePayable(order, stage); err != nil {
		return nil, err
	}
	if existing, err := s.openPayment(ctx, order.ID, stage); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	amount := stageAmount(order, stage)
	if !in.Amount.IsZero() && !money.Cents(in.Amount).Equal(amount) {
		return nil, invalidInput("amount %s does not match the %s amount %s of order %s",
			in.Amount.StringFixed(2), stage, amount.StringFixed(2), order.ID)
	}
	payment := &models.Payment{
		OrderID:       order.ID,
		ProposalID:    strPtr(in.ProposalID),
		ClientID:      firstNonEmpty(in.ClientID, order.ClientID),
		VendorID:      firstNonEmpty(in.VendorID, order.VendorID),
		ServiceID:     firstNonEmpty(in.ServiceID, order.ServiceID),
		Amount:        money.Cents(amount),
		Stage:         stage,
		Currency:      strings.ToUpper(firstNonEmpty(in.Currency, order.Currency)),
		PaymentMethod: in.PaymentMethod,
		Status:        models.PaymentStatusPending,
	}
	if payment.ProposalID == nil {
		payment.ProposalID = order.ProposalID
	}
	if err := s.repos.Payment.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	log.Infof("[Marketplace] Payment %s initiated for order %s (%s %s %s)",
		payment.ID, order.ID, payment.Stage, payment.Currency, payment.Amount.StringFixed(2))

	ev := paymentEvent(events.PaymentInitiated, order, payment)
	ev.ActorID = payment.ClientID
	s.publish(ctx, ev)
	return payment, nil
}

// GetPayment returns the payment with the given id.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.repos.Payment.GetByID(ctx, paymentID)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound, "get payment")
	}
	return payment, nil
}

// GetPaymentByOrderID returns the first payment of the order, restricted to
// stage when it is not empty.
func (s *Service) GetPaymentByOrderID(ctx context.Context, orderID string, stage models.PaymentStage) (*models.Payment, error) {
	payment, err := s.repos.Payment.GetByOrderID(ctx, orderID, stage)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound, "get payment by order")
	}
	return payment, nil
}

// ListOrderPayments returns every payment of an order, oldest first.
func (s *Service) ListOrderPayments(ctx context.Context, orderID string) ([]models.Payment, error) {
	return s.repos.Payment.ListByOrder(ctx, orderID)
}

// openPayment returns the newest pending payment of the stage, or nil. A
// stage that already has a paid payment cannot be opened again.
func (s *Service) openPayment(ctx context.Context, orderID string, stage models.PaymentStage) (*models.Payment, error) {
	payments, err := s.repos.Payment.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	var pending *models.Payment
	for i := len(payments) - 1; i >= 0; i-- {
		p := &payments[i]
		if p.Stage != stage {
			continue
		}
		switch p.Status {
		case models.PaymentStatusPaid:
			return nil, fmt.Errorf("%w: %s payment of order %s is already paid", ErrInvalidTransition, stage, orderID)
		case models.PaymentStatusPending:
			if pending == nil {
				pending = p
			}
		}
	}
	return pending, nil
}

// CreateRemainingPayment opens the remaining-stage payment of a delivered
// order whose advance is paid.
func (s *Service) CreateRemainingPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := remainingPayable(order, models.OrderStatusDelivered); err != nil {
		return nil, err
	}
	return s.CreatePayment(ctx, CreatePaymentInput{
		OrderID: order.ID,
		Amount:  order.RemainingAmount,
		Stage:   models.PaymentStageRemaining,
	})
}

// remainingPayable checks the remaining stage of an order whose status is
// one of statuses.
func remainingPayable(order *models.Order, statuses ...models.OrderStatus) error {
	if !order.PaidAdvance {
		return fmt.Errorf("%w: order %s", ErrAdvanceNotPaid, order.ID)
	}
	if order.PaidRemaining {
		return fmt.Errorf("%w: order %s", ErrRemainingAlreadyPaid, order.ID)
	}
	for _, status := range statuses {
		if order.Status == status {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s is %s", ErrOrderNotDelivered, order.ID, order.Status)
}

// stagePayable reports whether stage can still be settled on order. Staged
// orders settle advance and remaining, all other orders settle one full
// payment. Once the client accepted a delivery the remaining stage stays
// payable while the order awaits it.
func stagePayable(order *models.Order, stage models.PaymentStage) error {
	switch stage {
	case models.PaymentStageAdvance:
		if !order.IsStaged() {
			return fmt.Errorf("%w: order %s is not paid in stages", ErrPaymentStageMismatch, order.ID)
		}
		if order.PaidAdvance {
			return fmt.Errorf("%w: advance of order %s is already paid", ErrInvalidTransition, order.ID)
		}
	case models.PaymentStageRemaining:
		if !order.IsStaged() {
			return fmt.Errorf("%w: order %s is not paid in stages", ErrPaymentStageMismatch, order.ID)
		}
		return remainingPayable(order, models.OrderStatusDelivered, models.OrderStatusAwaitingRemainingPayment)
	case models.PaymentStageFull:
		if order.IsStaged() {
			return fmt.Errorf("%w: order %s is paid in advance and remaining stages", ErrPaymentStageMismatch, order.ID)
		}
		if order.PaymentStatus == models.OrderPaymentPaid {
			return fmt.Errorf("%w: order %s is already paid", ErrInvalidTransition, order.ID)
		}
	default:
		return invalidInput("unknown payment stage %q", stage)
	}
	return nil
}

// ProcessSuccessfulPayment finalizes a captured payment in one transaction:
// the payment becomes paid, an earning with the commission split is written
// and the order advances according to stage. An empty stage means the
// payment's own stage. Fan-out happens after commit.
func (s *Service) ProcessSuccessfulPayment(ctx context.Context, orderID, paymentID string, metadata map[string]interface{}, stage models.PaymentStage) (*FinalizeResult, error) {
	commissionRate := s.settings().GetCommissionRate()
	now := s.now()
	result := &FinalizeResult{}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		payment, err := tx.Payment.GetByID(ctx, paymentID)
		if err != nil {
			return notFound(err, ErrPaymentNotFound, "get payment")
		}
		if payment.OrderID != orderID || (stage != "" && payment.Stage != stage) {
			return fmt.Errorf("%w: payment %s is %s of order %s", ErrPaymentStageMismatch, payment.ID, payment.Stage, payment.OrderID)
		}
		order, err := tx.Order.GetByID(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound, "get order")
		}

		if payment.Status == models.PaymentStatusPaid {
			result.AlreadyProcessed = true
			result.Payment = payment
			result.Order = order
			if earning, err := tx.Earning.GetByPaymentID(ctx, payment.ID); err == nil {
				result.Earning = earning
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("get earning: %w", err)
			}
			return nil
		}
		if payment.Status != models.PaymentStatusPending {
			return &TransitionError{Entity: "payment", From: string(payment.Status), To: string(models.PaymentStatusPaid)}
		}

		changes, columns, err := finalizedOrder(order, payment.Stage, now)
		if err != nil {
			return err
		}

		merged := make(map[string]interface{}, len(payment.Metadata)+len(metadata))
		for k, v := range payment.Metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		paid := &models.Payment{Status: models.PaymentStatusPaid, PaidAt: &now, Metadata: merged}
		paymentColumns := []string{"status", "paid_at", "metadata"}
		if method, ok := merged["payment_method"].(string); ok && method != "" {
			paid.PaymentMethod = method
			paymentColumns = append(paymentColumns, "payment_method")
		}
		ok, err := tx.Payment.UpdateIfStatus(ctx, payment.ID, []models.PaymentStatus{models.PaymentStatusPending}, paid, paymentColumns...)
		if err != nil {
			return fmt.Errorf("mark payment paid: %w", err)
		}
		if !ok {
			return fmt.Errorf("payment %s changed concurrently: %w", payment.ID, ErrInvalidTransition)
		}

		amount := stageAmount(order, payment.Stage)
		admin, vendor := money.CommissionSplit(amount, commissionRate)
		earning := &models.Earning{
			OrderID:        order.ID,
			PaymentID:      payment.ID,
			PaymentStage:   payment.Stage,
			VendorID:       order.VendorID,
			ClientID:       order.ClientID,
			TotalAmount:    amount,
			CommissionRate: commissionRate,
			AdminShare:     admin,
			VendorShare:    vendor,
			Currency:       order.Currency,
			Status:         models.EarningStatusAvailable,
		}
		if err := tx.Earning.Create(ctx, earning); err != nil {
			return fmt.Errorf("create earning: %w", err)
		}

		ok, err = tx.Order.UpdateIfStatus(ctx, order.ID, []models.OrderStatus{order.Status}, changes, columns...)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if !ok {
			return fmt.Errorf("order %s changed concurrently: %w", order.ID, ErrInvalidTransition)
		}

		if result.Payment, err = tx.Payment.GetByID(ctx, payment.ID); err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		result.Earning = earning
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyProcessed {
		log.Infof("[Marketplace] Payment %s was already finalized", paymentID)
		return result, nil
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = order
	log.Infof("[Marketplace] Payment %s finalized: order %s now %s, admin %s, vendor %s",
		paymentID, order.ID, order.Status, result.Earning.AdminShare.StringFixed(2), result.Earning.VendorShare.StringFixed(2))

	ev := paymentEvent(events.PaymentFinalized, order, result.Payment)
	ev.ActorID = order.ClientID
	s.publish(ctx, ev)
	return result, nil
}

// finalizedOrder returns the order changes for a paid stage.
func finalizedOrder(order *models.Order, stage models.PaymentStage, now time.Time) (*models.Order, []string, error) {
	if err := stagePayable(order, stage); err != nil {
		return nil, nil, err
	}
	changes := &models.Order{}
	var columns []string
	switch stage {
	case models.PaymentStageAdvance:
		changes.PaidAdvance = true
		changes.PaymentPhase = models.PaymentPhaseInProgress
		changes.PaymentStatus = models.OrderPaymentAdvancePaid
		changes.Status = models.OrderStatusInProgress
		columns = []string{"paid_advance", "payment_stage", "payment_status", "status"}
	case models.PaymentStageRemaining:
		changes.PaidRemaining = true
		changes.PaymentPhase = models.PaymentPhasePaidFull
		changes.PaymentStatus = models.OrderPaymentPaid
		changes.Status = models.OrderStatusCompleted
		changes.CommissionCalculated = true
		changes.CompletedAt = &now
		columns = []string{"paid_remaining", "payment_stage", "payment_status", "status", "commission_calculated", "completed_at"}
	case models.PaymentStageFull:
		changes.CommissionCalculated = true
		changes.PaymentStatus = models.OrderPaymentPaid
		changes.Status = models.OrderStatusInProgress
		columns = []string{"commission_calculated", "payment_status", "status"}
		switch order.Status {
		case models.OrderStatusInProgress:
		case models.OrderStatusDelivered, models.OrderStatusAwaitingRemainingPayment:
			changes.Status = models.OrderStatusCompleted
			changes.CompletedAt = &now
			columns = append(columns, "completed_at")
		}
	}

	if changes.Status != order.Status && !order.Status.CanTransitionTo(changes.Status) {
		return nil, nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(changes.Status)}
	}
	return changes, columns, nil
}

// stageAmount is the part of the order total a stage settles.
func stageAmount(order *models.Order, stage models.PaymentStage) decimal.Decimal {
	switch stage {
	case models.PaymentStageAdvance:
		return order.AdvanceAmount
	case models.PaymentStageRemaining:
		return order.RemainingAmount
	default:
		return order.TotalAmount
	}
}

// PayStage charges the open payment of a stage through the gateway and
// finalizes it. A decline records the payment as failed and returns
// ErrPaymentDeclined.
func (s *Service) PayStage(ctx context.Context, orderID string, stage models.PaymentStage, method string) (*FinalizeResult, error) {
	if !stage.IsValid() {
		return nil, invalidInput("unknown payment stage %q", stage)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payment, err := s.payableStagePayment(ctx, order, stage)
	if err != nil {
		return nil, err
	}

	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		PaymentID: payment.ID,
		OrderID:   order.ID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Method:    method,
	})
	if err != nil {
		if _, ferr := s.RecordPaymentFailure(ctx, payment.ID, err.Error()); ferr != nil {
			log.Errorf("[Marketplace] Could not record failure of payment %s: %v", payment.ID, ferr)
		}
		if errors.Is(err, ErrPaymentDeclined) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
	}

	return s.ProcessSuccessfulPayment(ctx, order.ID, payment.ID, map[string]interface{}{
		"gateway":           charge.Gateway,
		"gateway_reference": charge.Reference,
		"payment_method":    method,
	}, stage)
}

// payableStagePayment returns the pending payment of stage, reopening a
// failed attempt or creating one when none exists.
func (s *Service) payableStagePayment(ctx context.Context, order *models.Order, stage models.PaymentStage) (*models.Payment, error) {
	payments, err := s.repos.Payment.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	var failed *models.Payment
	for i := len(payments) - 1; i >= 0; i-- {
		p := &payments[i]
		if p.Stage != stage {
			continue
		}
		switch p.Status {
		case models.PaymentStatusPending:
			return p, nil
		case models.PaymentStatusPaid:
			return nil, fmt.Errorf("%w: %s payment of order %s is already paid", ErrInvalidTransition, stage, order.ID)
		case models.PaymentStatusFailed:
			if failed == nil {
				failed = p
			}
		}
	}

	if failed != nil {
		reopen := &models.Payment{Status: models.PaymentStatusPending, FailureReason: ""}
		ok, err := s.repos.Payment.UpdateIfStatus(ctx, failed.ID, []models.PaymentStatus{models.PaymentStatusFailed}, reopen, "status", "failure_reason")
		if err != nil {
			return nil, fmt.Errorf("reopen payment: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("payment %s changed concurrently: %w", failed.ID, ErrInvalidTransition)
		}
		failed.Status = models.PaymentStatusPending
		failed.FailureReason = ""
		return failed, nil
	}

	if stage == models.PaymentStageRemaining {
		return s.CreateRemainingPayment(ctx, order.ID)
	}
	return s.CreatePayment(ctx, CreatePaymentInput{OrderID: order.ID, Stage: stage})
}

// RecordPaymentFailure marks a pending payment as failed.
func (s *Service) RecordPaymentFailure(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		return nil, &TransitionError{Entity: "payment", From: string(payment.Status), To: string(models.PaymentStatusFailed)}
	}
	changes := &models.Payment{Status: models.PaymentStatusFailed, FailureReason: reason}
	ok, err := s.repos.Payment.UpdateIfStatus(ctx, payment.ID, []models.PaymentStatus{models.PaymentStatusPending}, changes, "status", "failure_reason")
	if err != nil {
		return nil, fmt.Errorf("mark payment failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("payment %s changed concurrently: %w", payment.ID, ErrInvalidTransition)
	}
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason
	log.Warnf("[Marketplace] Payment %s of order %s failed: %s", payment.ID, payment.OrderID, reason)

	order, err := s.GetOrder(ctx, payment.OrderID)
	if err != nil {
		log.Warnf("[Marketplace] Payment %s failed for missing order %s", payment.ID, payment.OrderID)
		return payment, nil
	}
	ev := paymentEvent(events.PaymentFailed, order, payment)
	ev.Reason = reason
	s.publish(ctx, ev)
	return payment, nil
}

// GetEarnings lists earnings newest first.
func (s *Service) GetEarnings(ctx context.Context, filter repository.EarningFilter) ([]models.Earning, error) {
	return s.repos.Earning.List(ctx, filter)
}

// GetClientPayments lists a client's payments newest first.
func (s *Service) GetClientPayments(ctx context.Context, clientID string, limit int) ([]models.Payment, error) {
	if clientID == "" {
		return nil, invalidInput("client_id is required")
	}
	return s.repos.Payment.ListByClient(ctx, clientID, limit)
}

// EarningsSummary totals a vendor's earnings.
func (s *Service) EarningsSummary(ctx context.Context, vendorID string) (*models.EarningsSummary, error) {
	if vendorID == "" {
		return nil, invalidInput("vendor_id is required")
	}
	earnings, err := s.repos.Earning.List(ctx, repository.EarningFilter{VendorID: vendorID})
	if err != nil {
		return nil, err
	}
	summary := &models.EarningsSummary{
		VendorID:        vendorID,
		Available:       decimal.Zero,
		Withdrawn:       decimal.Zero,
		TotalVendor:     decimal.Zero,
		TotalCommission: decimal.Zero,
	}
	for _, e := range earnings {
		switch e.Status {
		case models.EarningStatusAvailable:
			summary.Available = summary.Available.Add(e.VendorShare)
		case models.EarningStatusWithdrawn:
			summary.Withdrawn = summary.Withdrawn.Add(e.VendorShare)
		}
		summary.TotalVendor = summary.TotalVendor.Add(e.VendorShare)
		summary.TotalCommission = summary.TotalCommission.Add(e.AdminShare)
		summary.Count++
	}
	return summary, nil
}

func paymentEvent(t events.Type, order *models.Order, payment *models.Payment) events.Event {
	ev := orderEvent(t, order)
	ev.PaymentID = payment.ID
	ev.Stage = payment.Stage
	ev.Amount = payment.Amount
	if payment.Currency != "" {
		ev.Currency = payment.Currency
	}
	return ev
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
