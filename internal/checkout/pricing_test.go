package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPricing_Tax(t *testing.T) {
	tests := []struct {
		name     string
		rate     string
		subtotal int64
		want     int64
	}{
		{"whole result", "0.10", 7800, 780},
		{"rounds down below half", "0.075", 1001, 75},   // 75.075
		{"rounds up from half", "0.05", 1110, 56},       // 55.5
		{"rounds up above half", "0.075", 999, 75},      // 74.925
		{"zero rate", "0", 7800, 0},
		{"zero subtotal", "0.19", 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := decimal.NewFromString(tc.rate)
			if err != nil {
				t.Fatalf("bad rate %q: %v", tc.rate, err)
			}
			p := Pricing{TaxRate: rate}
			if got := p.Tax(tc.subtotal); got != tc.want {
				t.Errorf("Tax(%d) at rate %s = %d, want %d", tc.subtotal, tc.rate, got, tc.want)
			}
		})
	}
}

func TestPricing_Shipping(t *testing.T) {
	p := Pricing{FreeShippingThreshold: 10000, FlatShippingFee: 500}

	if got := p.Shipping(9999); got != 500 {
		t.Errorf("below threshold: got %d, want 500", got)
	}
	// Exactly at the threshold still pays the flat fee.
	if got := p.Shipping(10000); got != 500 {
		t.Errorf("at threshold: got %d, want 500", got)
	}
	if got := p.Shipping(10001); got != 0 {
		t.Errorf("above threshold: got %d, want 0", got)
	}
}
