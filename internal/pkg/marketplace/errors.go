package marketplace

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrProposalNotFound     = errors.New("proposal not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrProposalClosed       = errors.New("proposal is no longer open")
	ErrAdvanceNotPaid       = errors.New("advance payment has not been made")
	ErrRemainingAlreadyPaid = errors.New("remaining payment has already been made")
	ErrOrderNotDelivered    = errors.New("order has not been delivered")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPaymentStageMismatch = errors.New("payment does not belong to this order stage")
	ErrPaymentDeclined      = errors.New("payment declined")
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// notFound maps a missing row to sentinel and wraps every other error.
func notFound(err error, sentinel error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
