package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns amount * rate / 100 without rounding.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// AdvanceSplit divides a price into the advance charged up front and the
// remaining balance due after delivery. The advance is rounded to whole
// currency units (half away from zero); advance + remaining == price always.
func AdvanceSplit(price, advanceRate decimal.Decimal) (advance, remaining decimal.Decimal) {
	advance = Percent(price, advanceRate).Round(0)
	remaining = price.Sub(advance)
	return advance, remaining
}

// CommissionSplit divides a paid amount into the platform share and the
// vendor share. The platform share is rounded to cents and the vendor gets
// the exact remainder, so admin + vendor == amount always.
func CommissionSplit(amount, commissionRate decimal.Decimal) (admin, vendor decimal.Decimal) {
	admin = Percent(amount, commissionRate).Round(2)
	vendor = amount.Sub(admin)
	return admin, vendor
}

// Cents rounds an amount to two decimals for storage and display.
func Cents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// IsPositive reports whether amount is strictly greater than zero.
func IsPositive(amount decimal.Decimal) bool {
	return amount.GreaterThan(decimal.Zero)
}
