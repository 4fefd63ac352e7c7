package market

import "github.com/shopspring/decimal"

// PayoutMultiplier is the gross return on a winning stake under even odds.
// A winner receives twice the stake back, so profit equals the stake.
var PayoutMultiplier = decimal.NewFromInt(2)

// Payout returns the gross amount released to a winning stake
func Payout(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(PayoutMultiplier)
}

// Profit returns the signed profit of a settled stake
func Profit(stake decimal.Decimal, won bool) decimal.Decimal {
	if won {
		return Payout(stake).Sub(stake)
	}
	return stake.Neg()
}

// Wins reports whether a grade clears a threshold
func Wins(grade, threshold float64) bool {
	return grade >= threshold
}

// ToNative converts a settlement-currency stake into the escrow's native unit
func ToNative(stake, rate decimal.Decimal) decimal.Decimal {
	return stake.Mul(rate)
}
