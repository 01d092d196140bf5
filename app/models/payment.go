package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStage is the part of an order a payment settles.
type PaymentStage string

const (
	PaymentStageAdvance   PaymentStage = "advance"
	PaymentStageRemaining PaymentStage = "remaining"
	PaymentStageFull      PaymentStage = "full"
)

// IsValid reports whether s is a known payment stage.
func (s PaymentStage) IsValid() bool {
	return s == PaymentStageAdvance || s == PaymentStageRemaining || s == PaymentStageFull
}

// PaymentStatus is the settlement state of a single payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is one financial attempt for one stage of one order.
type Payment struct {
	ID            string                 `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID       string                 `gorm:"type:varchar(36);not null;index:idx_payments_order_stage,priority:1" json:"order_id"`
	ProposalID    *string                `gorm:"type:varchar(36)" json:"proposal_id"`
	ClientID      string                 `gorm:"type:varchar(64);not null;index" json:"client_id"`
	VendorID      string                 `gorm:"type:varchar(64);not null;index" json:"vendor_id"`
	ServiceID     string                 `gorm:"type:varchar(64)" json:"service_id"`
	Amount        decimal.Decimal        `gorm:"type:decimal(12,2);not null" json:"amount"`
	Stage         PaymentStage           `gorm:"type:varchar(16);not null;default:'full';index:idx_payments_order_stage,priority:2" json:"stage"`
	Currency      string                 `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	PaymentMethod string                 `gorm:"type:varchar(32)" json:"payment_method"`
	Status        PaymentStatus          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	FailureReason string                 `gorm:"type:text" json:"failure_reason,omitempty"`
	Metadata      map[string]interface{} `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	PaidAt        *time.Time             `json:"paid_at,omitempty"`
	CreatedAt     time.Time              `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

