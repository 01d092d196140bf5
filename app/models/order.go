package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending                  OrderStatus = "pending"
	OrderStatusPendingPayment           OrderStatus = "pending_payment"
	OrderStatusProposalSent             OrderStatus = "proposal_sent"
	OrderStatusAwaitingPayment          OrderStatus = "awaiting_payment"
	OrderStatusInProgress               OrderStatus = "in_progress"
	OrderStatusDelivered                OrderStatus = "delivered"
	OrderStatusAwaitingRemainingPayment OrderStatus = "awaiting_remaining_payment"
	OrderStatusCompleted                OrderStatus = "completed"
	OrderStatusCancelled                OrderStatus = "cancelled"
)

// OrderPaymentStatus summarizes how much of an order has been paid.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid      OrderPaymentStatus = "unpaid"
	OrderPaymentAdvancePaid OrderPaymentStatus = "advance_paid"
	OrderPaymentPaid        OrderPaymentStatus = "paid"
)

// OrderPaymentPhase tracks the staged (advance/remaining) payment milestone of an order.
type OrderPaymentPhase string

const (
	PaymentPhasePendingAdvance OrderPaymentPhase = "PENDING_ADVANCE"
	PaymentPhaseInProgress     OrderPaymentPhase = "IN_PROGRESS"
	PaymentPhasePaidFull       OrderPaymentPhase = "PAID_FULL"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusPendingPayment,
		OrderStatusProposalSent,
		OrderStatusAwaitingPayment,
		OrderStatusInProgress,
		OrderStatusCancelled,
	},
	OrderStatusPendingPayment: {
		OrderStatusProposalSent,
		OrderStatusAwaitingPayment,
		OrderStatusInProgress,
		OrderStatusCancelled,
	},
	OrderStatusProposalSent: {
		OrderStatusProposalSent,
		OrderStatusAwaitingPayment,
		OrderStatusCancelled,
	},
	OrderStatusAwaitingPayment: {
		OrderStatusInProgress,
		OrderStatusCancelled,
	},
	OrderStatusInProgress: {
		OrderStatusDelivered,
		OrderStatusCancelled,
	},
	OrderStatusDelivered: {
		OrderStatusDelivered,
		OrderStatusAwaitingRemainingPayment,
		OrderStatusCompleted,
		OrderStatusCancelled,
	},
	OrderStatusAwaitingRemainingPayment: {
		OrderStatusCompleted,
		OrderStatusCancelled,
	},
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPendingPayment, OrderStatusProposalSent,
		OrderStatusAwaitingPayment, OrderStatusInProgress, OrderStatusDelivered,
		OrderStatusAwaitingRemainingPayment, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo consults the order transition table.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderStatusesLeadingTo returns every status from which next is reachable in one step.
func OrderStatusesLeadingTo(next OrderStatus) []OrderStatus {
	var from []OrderStatus
	for status, targets := range orderTransitions {
		for _, t := range targets {
			if t == next {
				from = append(from, status)
				break
			}
		}
	}
	return from
}

// Attachment is a delivered file reference.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// DeliveryDetails is the snapshot stored on an order once work is delivered.
type DeliveryDetails struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
	DeliveredAt time.Time    `json:"delivered_at"`
}

// Order is a unit of work a client has committed to buying from a vendor.
type Order struct {
	ID                   string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientID             string             `gorm:"type:varchar(64);not null;index" json:"client_id"`
	VendorID             string             `gorm:"type:varchar(64);not null;index" json:"vendor_id"`
	ServiceID            string             `gorm:"type:varchar(64);index" json:"service_id"`
	ServiceName          string             `gorm:"type:varchar(255)" json:"service_name"`
	ConversationID       string             `gorm:"type:varchar(36);index" json:"conversation_id"`
	ProposalID           *string            `gorm:"type:varchar(36);index" json:"proposal_id"`
	Status               OrderStatus        `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PaymentStatus        OrderPaymentStatus `gorm:"type:varchar(32);not null;default:'unpaid'" json:"payment_status"`
	PaymentPhase         OrderPaymentPhase  `gorm:"column:payment_stage;type:varchar(32)" json:"payment_stage"`
	Currency             string             `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	TotalAmount          decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	AdvanceAmount        decimal.Decimal    `gorm:"type:decimal(12,2);not null;default:0" json:"advance_amount"`
	RemainingAmount      decimal.Decimal    `gorm:"type:decimal(12,2);not null;default:0" json:"remaining_amount"`
	PaidAdvance          bool               `gorm:"default:false" json:"paid_advance"`
	PaidRemaining        bool               `gorm:"default:false" json:"paid_remaining"`
	CommissionCalculated bool               `gorm:"default:false" json:"commission_calculated"`
	Requirements         string             `gorm:"type:text" json:"requirements"`
	DeliveryDueAt        *time.Time         `json:"delivery_due_at,omitempty"`
	DeliveryDetails      *DeliveryDetails   `gorm:"type:text;serializer:json" json:"delivery_details,omitempty"`
	AcceptedAt           *time.Time         `json:"accepted_at,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
	CancelledAt          *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason         string             `gorm:"type:text" json:"cancel_reason,omitempty"`
	CreatedAt            time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// IsStaged reports whether the order is paid in advance/remaining stages.
func (o *Order) IsStaged() bool {
	return o.PaymentPhase != ""
}

// IsParticipant reports whether userID is the order's client or vendor.
func (o *Order) IsParticipant(userID string) bool {
	return userID != "" && (o.ClientID == userID || o.VendorID == userID)
}
