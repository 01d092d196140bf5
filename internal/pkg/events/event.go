package events

import (
	"encoding/json"
	"time"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a domain event.
type Type string

const (
	OrderCreated             Type = "order.created"
	OrderDelivered           Type = "order.delivered"
	OrderDeliveryAccepted    Type = "order.delivery_accepted"
	OrderCancelled           Type = "order.cancelled"
	ProposalCreated          Type = "proposal.created"
	ProposalAccepted         Type = "proposal.accepted"
	ProposalRejected         Type = "proposal.rejected"
	ProposalChangesRequested Type = "proposal.changes_requested"
	ProposalRevised          Type = "proposal.revised"
	PaymentInitiated         Type = "payment.initiated"
	PaymentFinalized         Type = "payment.finalized"
	PaymentFailed            Type = "payment.failed"
)

// Event is a fact recorded by a workflow after its primary write committed.
// It carries enough of the affected records for every subscriber to act
// without reading the store again.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	OrderID        string `json:"order_id,omitempty"`
	ProposalID     string `json:"proposal_id,omitempty"`
	PaymentID      string `json:"payment_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ClientID       string `json:"client_id"`
	VendorID       string `json:"vendor_id"`
	ActorID        string `json:"actor_id,omitempty"`

	ServiceName string              `json:"service_name,omitempty"`
	Title       string              `json:"title,omitempty"`
	OrderStatus models.OrderStatus  `json:"order_status,omitempty"`
	Stage       models.PaymentStage `json:"stage,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency,omitempty"`

	Feedback    string              `json:"feedback,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Message     string              `json:"message,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// New stamps an event with an id and the current time.
func New(t Type) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

// PartitionKey keeps events of one order in order on partitioned transports.
func (e Event) PartitionKey() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	if e.ProposalID != "" {
		return e.ProposalID
	}
	return e.ID
}

// Marshal encodes the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
