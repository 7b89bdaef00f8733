package types

import "github.com/shopspring/decimal"

// Round2 normalizes a monetary amount to two decimal places, the precision
// stored in the database and sent to the payment gateway.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// MoneyString formats an amount the way the gateway expects it ("170.00").
func MoneyString(amount decimal.Decimal) string {
	return amount.Round(2).StringFixed(2)
}

// LineTotal computes round2(unitPrice * qty).
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}
