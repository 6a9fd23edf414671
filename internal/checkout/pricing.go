package checkout

import "github.com/shopspring/decimal"

// Pricing holds the totals policy applied at checkout. Amounts are minor
// currency units; the tax rate is a fraction (0.19 for 19%).
type Pricing struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold int64
	FlatShippingFee       int64
	Currency              string
}

// Tax rounds half-up to a whole minor unit.
func (p Pricing) Tax(subtotal int64) int64 {
	return decimal.NewFromInt(subtotal).Mul(p.TaxRate).Round(0).IntPart()
}

func (p Pricing) Shipping(subtotal int64) int64 {
	if subtotal > p.FreeShippingThreshold {
		return 0
	}
	return p.FlatShippingFee
}
