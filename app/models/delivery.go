package models

import (
	"time"

	"gorm.io/gorm"
)

// Delivery records one submission of work for an order.
type Delivery struct {
	ID          string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID     string       `gorm:"type:varchar(36);not null;index" json:"order_id"`
	VendorID    string       `gorm:"type:varchar(64);not null" json:"vendor_id"`
	ClientID    string       `gorm:"type:varchar(64);not null" json:"client_id"`
	Message     string       `gorm:"type:text" json:"message"`
	Attachments []Attachment `gorm:"type:text;serializer:json" json:"attachments"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (d *Delivery) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
