package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ActivityRoleClient = "client"
	ActivityRoleVendor = "vendor"
)

// ActivityMetadata references the objects an activity entry summarizes.
type ActivityMetadata struct {
	OrderID    string `json:"order_id,omitempty"`
	ProposalID string `json:"proposal_id,omitempty"`
	PaymentID  string `json:"payment_id,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Stage      string `json:"stage,omitempty"`
}

// Activity is an append-only feed entry for one user.
type Activity struct {
	ID          string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string           `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Role        string           `gorm:"type:varchar(16);not null" json:"role"`
	Type        string           `gorm:"type:varchar(50);not null" json:"type"`
	Title       string           `gorm:"type:varchar(255)" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	Metadata    ActivityMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	CreatedAt   time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
