package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProposalStatus is the client-facing decision state of a proposal.
type ProposalStatus string

const (
	ProposalStatusPending          ProposalStatus = "pending"
	ProposalStatusAccepted         ProposalStatus = "accepted"
	ProposalStatusRejected         ProposalStatus = "rejected"
	ProposalStatusChangesRequested ProposalStatus = "changes_requested"
)

var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalStatusPending: {
		ProposalStatusAccepted,
		ProposalStatusRejected,
		ProposalStatusChangesRequested,
	},
	ProposalStatusChangesRequested: {
		ProposalStatusPending,
		ProposalStatusChangesRequested,
		ProposalStatusAccepted,
		ProposalStatusRejected,
	},
}

// CanTransitionTo consults the proposal transition table.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	for _, allowed := range proposalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the client can still decide on the proposal.
func (s ProposalStatus) IsOpen() bool {
	return s == ProposalStatusPending || s == ProposalStatusChangesRequested
}

// OpenProposalStatuses are the states a client decision may start from.
func OpenProposalStatuses() []ProposalStatus {
	return []ProposalStatus{ProposalStatusPending, ProposalStatusChangesRequested}
}

// Proposal is a vendor-authored custom offer to a specific client.
type Proposal struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	VendorID       string          `gorm:"type:varchar(64);not null;index" json:"vendor_id"`
	ClientID       string          `gorm:"type:varchar(64);not null;index" json:"client_id"`
	ServiceID      *string         `gorm:"type:varchar(64)" json:"service_id"`
	ServiceName    string          `gorm:"type:varchar(255)" json:"service_name"`
	ConversationID string          `gorm:"type:varchar(36);index" json:"conversation_id"`
	OrderID        *string         `gorm:"type:varchar(36);index" json:"order_id"`
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Description    string          `gorm:"type:text" json:"description"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	DeliveryTime   int             `gorm:"not null;default:0" json:"delivery_time"` // days
	Status         ProposalStatus  `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ClientFeedback string          `gorm:"type:text" json:"client_feedback,omitempty"`
	RespondedAt    *time.Time      `json:"responded_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Proposal) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
