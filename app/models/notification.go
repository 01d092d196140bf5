package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	NotificationNewOrder                 = "new_order"
	NotificationProposalReceived         = "proposal_received"
	NotificationProposalAccepted         = "proposal_accepted"
	NotificationProposalRejected         = "proposal_rejected"
	NotificationProposalChangesRequested = "proposal_changes_requested"
	NotificationProposalRevised          = "proposal_revised"
	NotificationOrderDelivered           = "order_delivered"
	NotificationOrderCancelled           = "order_cancelled"
	NotificationPaymentInitiated         = "payment_initiated"
	NotificationAdvancePaid              = "advance_paid"
	NotificationPaymentCompleted         = "payment_completed"
	NotificationPaymentReceived          = "payment_received"
	NotificationPaymentSuccess           = "payment_success"
	NotificationPaymentFailed            = "payment_failed"
)

// DeliveryFocus is the deep-link anchor for a delivered-work message.
const DeliveryFocus = "delivery"

// ProposalFocus returns the deep-link anchor of a proposal card.
func ProposalFocus(proposalID string) string {
	return "proposal_" + proposalID
}

// DeepLink builds the UI link embedded in notification metadata.
func DeepLink(conversationID, orderID, focus string) string {
	if conversationID == "" {
		if orderID == "" {
			return ""
		}
		return "/orders/" + orderID
	}
	if focus == "" {
		return "/messages/" + conversationID
	}
	return fmt.Sprintf("/messages/%s?focus=%s", conversationID, focus)
}

// NotificationMetadata carries the references the UI needs to navigate.
type NotificationMetadata struct {
	OrderID        string `json:"order_id,omitempty"`
	ProposalID     string `json:"proposal_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	PaymentID      string `json:"payment_id,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
	Link           string `json:"link,omitempty"`
}

type Notification struct {
	ID        string               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string               `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Type      string               `gorm:"type:varchar(50);not null" json:"type"`
	Title     string               `gorm:"type:varchar(255)" json:"title"`
	Message   string               `gorm:"type:text" json:"message"`
	IsRead    bool                 `gorm:"default:false;index" json:"is_read"`
	Metadata  NotificationMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	ReadAt    *time.Time           `json:"read_at,omitempty"`
	CreatedAt time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}

// MarkAsRead marks the notification as read
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	now := time.Now()
	n.IsRead = true
	n.ReadAt = &now
	return db.Model(n).Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
}
