package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemSenderID marks messages written by the platform rather than a participant.
const SystemSenderID = "system"

const (
	MessageTypeText          = "text"
	MessageTypeSystem        = "system"
	MessageTypeWorkDelivered = "work_delivered"
)

// Conversation is a chat thread between a client and a vendor. The Last* fields
// are a denormalized preview so lists render without reading the message stream.
type Conversation struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ClientID        string     `gorm:"type:varchar(64);not null;index:idx_conversations_participants,priority:1" json:"client_id"`
	VendorID        string     `gorm:"type:varchar(64);not null;index:idx_conversations_participants,priority:2" json:"vendor_id"`
	OrderID         string     `gorm:"type:varchar(36);index" json:"order_id,omitempty"`
	LastMessage     string     `gorm:"type:text" json:"last_message"`
	LastMessageType string     `gorm:"type:varchar(32)" json:"last_message_type"`
	LastSenderID    string     `gorm:"type:varchar(64)" json:"last_sender_id"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Message is one entry of a conversation's message stream.
type Message struct {
	ID             string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string       `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	SenderID       string       `gorm:"type:varchar(64);not null" json:"sender_id"`
	Type           string       `gorm:"type:varchar(32);not null;default:'text'" json:"type"`
	Text           string       `gorm:"type:text" json:"text"`
	Attachments    []Attachment `gorm:"type:text;serializer:json" json:"attachments,omitempty"`
	OrderID        string       `gorm:"type:varchar(36)" json:"order_id,omitempty"`
	ProposalID     string       `gorm:"type:varchar(36)" json:"proposal_id,omitempty"`
	CreatedAt      time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
