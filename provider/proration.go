package provider

import "github.com/shopspring/decimal"

const prorationPeriodDays = 30

// CalculateProratedAmount charges amount/30 per remaining day. A period of
// 30 days or more is charged in full; no remaining days cost nothing.
func CalculateProratedAmount(amount decimal.Decimal, daysRemaining int) decimal.Decimal {
	switch {
	case daysRemaining <= 0:
		return decimal.Zero
	case daysRemaining >= prorationPeriodDays:
		return amount
	}
	// multiply first so whole-cent results stay exact
	return amount.Mul(decimal.NewFromInt(int64(daysRemaining))).Div(decimal.NewFromInt(prorationPeriodDays))
}
