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

// CreateProposalInput is a vendor's custom offer to a client.
type CreateProposalInput struct {
	VendorID       string          `json:"vendor_id" validate:"required,max=64"`
	ClientID       string          `json:"client_id" validate:"required,max=64"`
	ServiceID      string          `json:"service_id" validate:"max=64"`
	ServiceName    string          `json:"service_name" validate:"max=255"`
	ConversationID string          `json:"conversation_id" validate:"max=36"`
	OrderID        string          `json:"order_id" validate:"max=36"`
	Title          string          `json:"title" validate:"required,max=255"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency" validate:"omitempty,len=3"`
	DeliveryTime   int             `json:"delivery_time" validate:"gte=0,lte=365"`
}

// ProposalRevision is a vendor's answer to requested changes. Nil fields are kept.
type ProposalRevision struct {
	Title        *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description  *string          `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	DeliveryTime *int             `json:"delivery_time" validate:"omitempty,gte=0,lte=365"`
}

// CreateProposal stores a pending proposal. When it answers an existing
// order, that order moves to proposal_sent.
func (s *Service) CreateProposal(ctx context.Context, in CreateProposalInput) (*models.Proposal, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if in.VendorID == in.ClientID {
		return nil, invalidInput("vendor and client must differ")
	}
	if !money.IsPositive(in.Price) {
		return nil, invalidInput("price must be positive")
	}

	var order *models.Order
	if in.OrderID != "" {
		var err error
		if order, err = s.GetOrder(ctx, in.OrderID); err != nil {
			return nil, err
		}
		if order.ClientID != in.ClientID || order.VendorID != in.VendorID {
			return nil, invalidInput("order %s belongs to other participants", in.OrderID)
		}
		if !order.Status.CanTransitionTo(models.OrderStatusProposalSent) {
			return nil, &TransitionError{Entity: "order", From: string(order.Status), To: string(models.OrderStatusProposalSent)}
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.settings().GetDefaultCurrency()
	}
	conversationID := in.ConversationID
	if conversationID == "" && order != nil {
		conversationID = order.ConversationID
	}
	if conversationID == "" {
		conversationID = s.openConversation(ctx, in.ClientID, in.VendorID, in.OrderID)
	}

	proposal := &models.Proposal{
		VendorID:       in.VendorID,
		ClientID:       in.ClientID,
		ServiceID:      strPtr(in.ServiceID),
		ServiceName:    in.ServiceName,
		ConversationID: conversationID,
		OrderID:        strPtr(in.OrderID),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Price:          money.Cents(in.Price),
		Currency:       currency,
		DeliveryTime:   in.DeliveryTime,
		Status:         models.ProposalStatusPending,
	}
	if err := s.repos.Proposal.Create(ctx, proposal); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	if order != nil {
		if err := s.updateOrderFrom(ctx, order, &models.Order{Status: models.OrderStatusProposalSent}, "status"); err != nil {
			return nil, err
		}
	}
	log.Infof("[Marketplace] Proposal %s sent by vendor %s to client %s (%s %s)",
		proposal.ID, proposal.VendorID, proposal.ClientID, proposal.Currency, proposal.Price.StringFixed(2))

	ev := proposalEvent(events.ProposalCreated, proposal)
	ev.ActorID = proposal.VendorID
	ev.Amount = proposal.Price
	s.publish(ctx, ev)
	return proposal, nil
}

// GetProposal returns the proposal with the given id.
func (s *Service) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	proposal, err := s.repos.Proposal.GetByID(ctx, proposalID)
	if err != nil {
		return nil, notFound(err, ErrProposalNotFound, "get proposal")
	}
	return proposal, nil
}

// ListProposals returns proposals newest first.
func (s *Service) ListProposals(ctx context.Context, filter repository.ProposalFilter) ([]models.Proposal, error) {
	return s.repos.Proposal.List(ctx, filter)
}

// AcceptProposal accepts an open proposal, creates or updates its order with
// the advance/remaining split and seeds the pending advance payment. The
// proposal status change is a compare-and-swap, so of two concurrent accepts
// only one creates an order.
func (s *Service) AcceptProposal(ctx context.Context, proposalID string) (*models.Order, error) {
	var (
		proposal *models.Proposal
		order    *models.Order
		payment  *models.Payment
	)
	settings := s.settings()
	now := s.now()

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		if proposal, err = tx.Proposal.GetByID(ctx, proposalID); err != nil {
			return notFound(err, ErrProposalNotFound, "get proposal")
		}
		if err := s.closeProposal(ctx, tx, proposal, models.ProposalStatusAccepted, &models.Proposal{}, now); err != nil {
			return err
		}

		advance, remaining := money.AdvanceSplit(proposal.Price, settings.GetAdvanceRate())
		if order, err = s.orderForProposal(ctx, tx, proposal, advance, remaining, now); err != nil {
			return err
		}
		if derefStr(proposal.OrderID) != order.ID {
			link := &models.Proposal{OrderID: &order.ID}
			if _, err := tx.Proposal.UpdateIfStatus(ctx, proposal.ID, []models.ProposalStatus{models.ProposalStatusAccepted}, link, "order_id"); err != nil {
				return fmt.Errorf("link proposal to order: %w", err)
			}
			proposal.OrderID = &order.ID
		}

		payment = &models.Payment{
			OrderID:    order.ID,
			ProposalID: &proposal.ID,
			ClientID:   order.ClientID,
			VendorID:   order.VendorID,
			ServiceID:  order.ServiceID,
			Amount:     advance,
			Stage:      models.PaymentStageAdvance,
			Currency:   order.Currency,
			Status:     models.PaymentStatusPending,
		}
		if err := tx.Payment.Create(ctx, payment); err != nil {
			return fmt.Errorf("create advance payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Proposal %s accepted: order %s, advance %s, remaining %s",
		proposal.ID, order.ID, order.AdvanceAmount.StringFixed(2), order.RemainingAmount.StringFixed(2))

	ev := proposalEvent(events.ProposalAccepted, proposal)
	ev.OrderID = order.ID
	ev.PaymentID = payment.ID
	ev.ActorID = proposal.ClientID
	ev.OrderStatus = order.Status
	ev.Stage = models.PaymentStageAdvance
	ev.Amount = payment.Amount
	if ev.ConversationID == "" {
		ev.ConversationID = order.ConversationID
	}
	s.publish(ctx, ev)
	return order, nil
}

// orderForProposal updates the order the proposal answers, or creates one
// when the proposal stands alone.
func (s *Service) orderForProposal(ctx context.Context, tx *repository.Repositories, proposal *models.Proposal, advance, remaining decimal.Decimal, now time.Time) (*models.Order, error) {
	staged := models.Order{
		Status:          models.OrderStatusAwaitingPayment,
		PaymentStatus:   models.OrderPaymentUnpaid,
		PaymentPhase:    models.PaymentPhasePendingAdvance,
		Currency:        proposal.Currency,
		TotalAmount:     proposal.Price,
		AdvanceAmount:   advance,
		RemainingAmount: remaining,
		ProposalID:      &proposal.ID,
	}
	if proposal.DeliveryTime > 0 {
		due := now.AddDate(0, 0, proposal.DeliveryTime)
		staged.DeliveryDueAt = &due
	}

	if proposal.OrderID != nil {
		existing, err := tx.Order.GetByID(ctx, *proposal.OrderID)
		switch {
		case err == nil:
			if !existing.Status.CanTransitionTo(models.OrderStatusAwaitingPayment) {
				return nil, &TransitionError{Entity: "order", From: string(existing.Status), To: string(models.OrderStatusAwaitingPayment)}
			}
			columns := []string{"status", "payment_status", "payment_stage", "currency", "total_amount",
				"advance_amount", "remaining_amount", "proposal_id", "delivery_due_at"}
			if existing.ConversationID == "" && proposal.ConversationID != "" {
				staged.ConversationID = proposal.ConversationID
				columns = append(columns, "conversation_id")
			}
			ok, err := tx.Order.UpdateIfStatus(ctx, existing.ID, []models.OrderStatus{existing.Status}, &staged, columns...)
			if err != nil {
				return nil, fmt.Errorf("update order %s: %w", existing.ID, err)
			}
			if !ok {
				return nil, fmt.Errorf("order %s changed concurrently: %w", existing.ID, ErrInvalidTransition)
			}
			return tx.Order.GetByID(ctx, existing.ID)
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Marketplace] Proposal %s references missing order %s, creating a new one", proposal.ID, *proposal.OrderID)
		default:
			return nil, fmt.Errorf("get order: %w", err)
		}
	}

	order := staged
	order.ClientID = proposal.ClientID
	order.VendorID = proposal.VendorID
	order.ServiceID = derefStr(proposal.ServiceID)
	order.ServiceName = proposal.ServiceName
	if order.ServiceName == "" {
		order.ServiceName = proposal.Title
	}
	order.ConversationID = proposal.ConversationID
	order.Requirements = proposal.Description
	if err := tx.Order.Create(ctx, &order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}

// RejectProposal closes an open proposal as rejected.
func (s *Service) RejectProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	proposal, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.closeProposal(ctx, s.repos, proposal, models.ProposalStatusRejected, &models.Proposal{}, s.now()); err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Proposal %s rejected", proposal.ID)

	ev := proposalEvent(events.ProposalRejected, proposal)
	ev.ActorID = proposal.ClientID
	s.publish(ctx, ev)
	return proposal, nil
}

// RequestProposalChanges sends an open proposal back to the vendor with feedback.
func (s *Service) RequestProposalChanges(ctx context.Context, proposalID, feedback string) (*models.Proposal, error) {
	proposal, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	feedback = strings.TrimSpace(feedback)
	changes := &models.Proposal{ClientFeedback: feedback}
	if err := s.closeProposal(ctx, s.repos, proposal, models.ProposalStatusChangesRequested, changes, s.now(), "client_feedback"); err != nil {
		return nil, err
	}
	proposal.ClientFeedback = feedback
	log.Infof("[Marketplace] Changes requested on proposal %s", proposal.ID)

	ev := proposalEvent(events.ProposalChangesRequested, proposal)
	ev.ActorID = proposal.ClientID
	ev.Feedback = feedback
	s.publish(ctx, ev)
	return proposal, nil
}

// ReviseProposal applies a vendor revision and puts the proposal back to pending.
func (s *Service) ReviseProposal(ctx context.Context, proposalID string, rev ProposalRevision) (*models.Proposal, error) {
	if err := s.validateStruct(rev); err != nil {
		return nil, err
	}
	if rev.Price != nil && !money.IsPositive(*rev.Price) {
		return nil, invalidInput("price must be positive")
	}
	proposal, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.Status.IsOpen() {
		return nil, fmt.Errorf("%w: proposal %s is %s", ErrProposalClosed, proposal.ID, proposal.Status)
	}

	changes := &models.Proposal{Status: models.ProposalStatusPending, ClientFeedback: ""}
	columns := []string{"status", "client_feedback"}
	if rev.Title != nil {
		changes.Title = strings.TrimSpace(*rev.Title)
		columns = append(columns, "title")
	}
	if rev.Description != nil {
		changes.Description = *rev.Description
		columns = append(columns, "description")
	}
	if rev.Price != nil {
		changes.Price = money.Cents(*rev.Price)
		columns = append(columns, "price")
	}
	if rev.DeliveryTime != nil {
		changes.DeliveryTime = *rev.DeliveryTime
		columns = append(columns, "delivery_time")
	}

	ok, err := s.repos.Proposal.UpdateIfStatus(ctx, proposal.ID, models.OpenProposalStatuses(), changes, columns...)
	if err != nil {
		return nil, fmt.Errorf("revise proposal %s: %w", proposal.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s was decided concurrently", ErrProposalClosed, proposal.ID)
	}
	if proposal, err = s.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	log.Infof("[Marketplace] Proposal %s revised", proposal.ID)

	ev := proposalEvent(events.ProposalRevised, proposal)
	ev.ActorID = proposal.VendorID
	ev.Amount = proposal.Price
	s.publish(ctx, ev)
	return proposal, nil
}

// closeProposal moves an open proposal to status with a compare-and-swap on
// its current open state. extra columns of changes are written along.
func (s *Service) closeProposal(ctx context.Context, repos *repository.Repositories, proposal *models.Proposal, status models.ProposalStatus, changes *models.Proposal, now time.Time, extra ...string) error {
	if !proposal.Status.IsOpen() {
		return fmt.Errorf("%w: proposal %s is %s", ErrProposalClosed, proposal.ID, proposal.Status)
	}
	if !proposal.Status.CanTransitionTo(status) {
		return &TransitionError{Entity: "proposal", From: string(proposal.Status), To: string(status)}
	}
	changes.Status = status
	changes.RespondedAt = &now
	columns := append([]string{"status", "responded_at"}, extra...)

	ok, err := repos.Proposal.UpdateIfStatus(ctx, proposal.ID, models.OpenProposalStatuses(), changes, columns...)
	if err != nil {
		return fmt.Errorf("update proposal %s: %w", proposal.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: proposal %s was decided concurrently", ErrProposalClosed, proposal.ID)
	}
	proposal.Status = status
	proposal.RespondedAt = &now
	return nil
}

func proposalEvent(t events.Type, p *models.Proposal) events.Event {
	ev := events.New(t)
	ev.ProposalID = p.ID
	ev.OrderID = derefStr(p.OrderID)
	ev.ConversationID = p.ConversationID
	ev.ClientID = p.ClientID
	ev.VendorID = p.VendorID
	ev.ServiceName = p.ServiceName
	ev.Title = p.Title
	ev.Currency = p.Currency
	return ev
}
