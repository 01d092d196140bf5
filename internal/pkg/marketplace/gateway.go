package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeRequest asks a gateway to capture one payment.
type ChargeRequest struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Method    string
}

// ChargeResult identifies a captured charge at the gateway.
type ChargeResult struct {
	Gateway   string
	Reference string
}

// Gateway captures payments. A returned error is a decline or transport
// failure; the payment is then recorded as failed.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// DeclinedMethod makes the simulated gateway decline a charge.
const DeclinedMethod = "declined_card"

// SimulatedGateway approves every charge except those paid with
// DeclinedMethod, and hands out SIM- references.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.EqualFold(req.Method, DeclinedMethod) {
		return nil, fmt.Errorf("%w: card declined", ErrPaymentDeclined)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount", ErrPaymentDeclined)
	}
	ref := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return &ChargeResult{Gateway: "simulated", Reference: "SIM-" + ref}, nil
}
