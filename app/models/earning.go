package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EarningStatusAvailable = "available"
	EarningStatusWithdrawn = "withdrawn"
)

// Earning is the immutable vendor/platform revenue split of one finalized payment.
// Only Status changes after creation (on withdrawal).
type Earning struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID        string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	PaymentID      string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"payment_id"`
	PaymentStage   PaymentStage    `gorm:"type:varchar(16);not null" json:"payment_stage"`
	VendorID       string          `gorm:"type:varchar(64);not null;index" json:"vendor_id"`
	ClientID       string          `gorm:"type:varchar(64);not null;index" json:"client_id"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission_rate"`
	AdminShare     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"admin_share"`
	VendorShare    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"vendor_share"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status         string          `gorm:"type:varchar(16);not null;default:'available';index" json:"status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (e *Earning) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// EarningsSummary aggregates a vendor's earnings by status.
type EarningsSummary struct {
	VendorID        string          `json:"vendor_id"`
	Available       decimal.Decimal `json:"available"`
	Withdrawn       decimal.Decimal `json:"withdrawn"`
	TotalVendor     decimal.Decimal `json:"total_vendor_share"`
	TotalCommission decimal.Decimal `json:"total_admin_share"`
	Count           int             `json:"count"`
}
